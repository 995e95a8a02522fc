// Copyright 2015 The Delix Project Authors. See the AUTHORS file at the top level directory.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package node assembles a Config into a running mesh participant: it
// wires the Direct transport, discovery, metrics, logging and the
// optional relay and metrics HTTP endpoints behind a single embeddable
// Node type.
package node

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"

	"github.com/delix/delix/internal/cipher"
	"github.com/delix/delix/internal/config"
	"github.com/delix/delix/internal/conn"
	"github.com/delix/delix/internal/discovery"
	"github.com/delix/delix/internal/logging"
	"github.com/delix/delix/internal/metrics"
	"github.com/delix/delix/internal/mtls"
	"github.com/delix/delix/internal/registry"
	"github.com/delix/delix/internal/relay"
	"github.com/delix/delix/internal/tracker"
	"github.com/delix/delix/internal/transport"
	"github.com/delix/delix/internal/wire"
)

// Node is one running mesh participant: a bound Direct transport plus
// whatever discovery, metrics, and relay surfaces its Config enabled.
type Node struct {
	cfg       *config.Config
	transport *transport.Direct
	discovery discovery.Discovery
	metrics   *metrics.Metrics
	monitor   *metrics.HostMonitor
	logger    *slog.Logger
	logCloser io.Closer

	metricsServer *http.Server
	relayServer   *http.Server

	discoveryDone chan struct{}
	closeOnce     sync.Once
}

// New builds a Node from cfg but does not yet bind its listening
// socket or join the mesh; call Start for that.
func New(cfg *config.Config) (*Node, error) {
	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")

	meshCipher, err := buildCipher(cfg.Security)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	tlsConfig, err := buildTLSConfig(cfg.Security.MTLS)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	dscp, err := conn.ParseDSCP(cfg.Node.DSCP)
	if err != nil {
		logCloser.Close()
		return nil, fmt.Errorf("node.dscp: %w", err)
	}

	m := metrics.New(1024)

	d := transport.New(transport.Config{
		LocalAddress:        cfg.Node.ListenAddress,
		PublicAddress:       cfg.Node.PublicAddress,
		Cipher:              meshCipher,
		DSCP:                dscp,
		RequestTimeout:      cfg.Mesh.RequestTimeout,
		TLSConfig:           tlsConfig,
		OutboundBytesPerSec: cfg.Mesh.MaxBandwidthRaw,
		ConnectionsGauge:    m.ConnectionsGauge(),
		Logger:              logger,
	})

	disc, err := buildDiscovery(cfg.Discovery, cfg.Node.PublicAddress, logger)
	if err != nil {
		logCloser.Close()
		return nil, err
	}

	n := &Node{
		cfg:       cfg,
		transport: d,
		discovery: disc,
		metrics:   m,
		monitor:   metrics.NewHostMonitor(logger),
		logger:    logger,
		logCloser: logCloser,
	}
	return n, nil
}

func buildCipher(sec config.SecurityInfo) (cipher.Cipher, error) {
	switch sec.Cipher {
	case "none":
		return cipher.Null{}, nil
	default:
		key, err := os.ReadFile(sec.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("reading security.key_file: %w", err)
		}
		c, err := cipher.NewAESGCM(key)
		if err != nil {
			return nil, fmt.Errorf("building aesgcm cipher: %w", err)
		}
		return c, nil
	}
}

func buildTLSConfig(mtlsCfg config.MTLSInfo) (*tls.Config, error) {
	if !mtlsCfg.Enabled {
		return nil, nil
	}
	cfg, err := mtls.NewConfig(mtlsCfg.CACertFile, mtlsCfg.NodeCertFile, mtlsCfg.NodeKeyFile)
	if err != nil {
		return nil, fmt.Errorf("building mtls config: %w", err)
	}
	return cfg, nil
}

func buildDiscovery(cfg config.DiscoveryInfo, publicAddress string, logger *slog.Logger) (discovery.Discovery, error) {
	switch cfg.Mode {
	case "multicast":
		return discovery.NewMulticast(cfg.Multicast.Address, publicAddress, cfg.Multicast.Interval, logger)
	default:
		return discovery.NewConstant(nil), nil
	}
}

// Start generates (or parses) this node's identity, binds the
// listening socket, joins the configured seed addresses, starts the
// background discovery loop, and brings up the metrics and relay HTTP
// endpoints the Config enabled.
func (n *Node) Start() (wire.NodeID, error) {
	nodeID, err := parseOrZeroNodeID(n.cfg.Node.ID)
	if err != nil {
		return wire.NodeID{}, err
	}

	nodeID, err = n.transport.Bind(nodeID)
	if err != nil {
		return wire.NodeID{}, err
	}

	if err := n.transport.Join(n.cfg.Mesh.Join); err != nil {
		n.logger.Warn("joining seed addresses", "error", err)
	}

	n.monitor.Start()

	n.discoveryDone = make(chan struct{})
	go n.discoveryLoop()

	if n.cfg.Metrics.ListenAddress != "" {
		if err := n.startMetricsServer(); err != nil {
			return nodeID, err
		}
	}
	if n.cfg.Relay.ListenAddress != "" {
		if err := n.startRelayServer(); err != nil {
			return nodeID, err
		}
	}

	return nodeID, nil
}

func parseOrZeroNodeID(id string) (wire.NodeID, error) {
	if id == "" {
		return wire.NodeID{}, nil
	}
	return wire.NodeIDFromHex(id)
}

// discoveryLoop feeds every address Discovery yields into Join,
// running until Discovery is closed (Stop does this) or exhausted.
func (n *Node) discoveryLoop() {
	defer close(n.discoveryDone)
	for {
		address, ok := n.discovery.Next()
		if !ok {
			return
		}
		if err := n.transport.Join([]string{address}); err != nil {
			n.logger.Warn("joining discovered peer", "address", address, "error", err)
		}
	}
}

func (n *Node) startMetricsServer() error {
	listener, err := net.Listen("tcp", n.cfg.Metrics.ListenAddress)
	if err != nil {
		return fmt.Errorf("binding metrics listener: %w", err)
	}
	n.metricsServer = &http.Server{Handler: n.metrics.Handler()}
	go func() {
		if err := n.metricsServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Warn("metrics server stopped", "error", err)
		}
	}()
	return nil
}

func (n *Node) startRelayServer() error {
	acl, err := relay.NewACL(n.cfg.Relay.AllowedCIDRs)
	if err != nil {
		return fmt.Errorf("building relay acl: %w", err)
	}

	listener, err := net.Listen("tcp", n.cfg.Relay.ListenAddress)
	if err != nil {
		return fmt.Errorf("binding relay listener: %w", err)
	}

	handler := acl.Middleware(relay.NewServer(n.transport, "X-Delix-Service", n.logger))
	n.relayServer = &http.Server{Handler: handler}
	go func() {
		if err := n.relayServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			n.logger.Warn("relay server stopped", "error", err)
		}
	}()
	return nil
}

// Register installs handler as name's local service and keeps the
// service-count metric in step.
func (n *Node) Register(name string, handler registry.Handler) error {
	if err := n.transport.Register(name, handler); err != nil {
		return err
	}
	n.metrics.ServiceRegistered()
	return nil
}

// Deregister withdraws name's local service and keeps the
// service-count metric in step.
func (n *Node) Deregister(name string) error {
	if err := n.transport.Deregister(name); err != nil {
		return err
	}
	n.metrics.ServiceDeregistered()
	return nil
}

// Request draws a link for name and invokes it, recording the
// outcome in the request metrics.
func (n *Node) Request(name string, body io.Reader) (io.Reader, error) {
	reader, err := n.transport.Request(name, body)
	n.metrics.RequestOutcome(err, errors.Is(err, tracker.ErrTimeout))
	return reader, err
}

// ConnectionCount reports the number of currently open peer
// connections.
func (n *Node) ConnectionCount() int { return n.transport.ConnectionCount() }

// Addr returns the address this node's transport is bound to. It
// panics if called before Start.
func (n *Node) Addr() net.Addr { return n.transport.Addr() }

// Stop closes the discovery source, every HTTP endpoint, and the
// underlying transport, then flushes the logger.
func (n *Node) Stop() error {
	var err error
	n.closeOnce.Do(func() {
		if n.discovery != nil {
			n.discovery.Close()
		}
		if n.metricsServer != nil {
			n.metricsServer.Close()
		}
		if n.relayServer != nil {
			n.relayServer.Close()
		}
		n.monitor.Stop()
		err = n.transport.Close()
		if n.logCloser != nil {
			n.logCloser.Close()
		}
	})
	return err
}
