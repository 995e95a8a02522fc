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

// Package config loads and validates a node's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration of one Delix node process.
type Config struct {
	Node      NodeInfo      `yaml:"node"`
	Mesh      MeshInfo      `yaml:"mesh"`
	Security  SecurityInfo  `yaml:"security"`
	Discovery DiscoveryInfo `yaml:"discovery"`
	Metrics   MetricsInfo   `yaml:"metrics"`
	Relay     RelayInfo     `yaml:"relay"`
	Logging   LoggingInfo   `yaml:"logging"`
}

// NodeInfo identifies and binds this node.
type NodeInfo struct {
	// ID is this node's hex-encoded identity. Left empty, Bind
	// generates a random one on first start.
	ID string `yaml:"id"`
	// ListenAddress is the address Bind listens on, e.g. ":7331".
	ListenAddress string `yaml:"listen_address"`
	// PublicAddress is advertised to peers during the handshake.
	// Defaults to ListenAddress when empty.
	PublicAddress string `yaml:"public_address"`
	// DSCP optionally marks outbound mesh traffic for QoS, e.g. "EF",
	// "AF41". Empty disables marking.
	DSCP string `yaml:"dscp"`
}

// MeshInfo controls joining an existing mesh and per-request
// behavior.
type MeshInfo struct {
	// Join lists seed addresses to dial on startup; Join follows each
	// peer's advertised peer list from there.
	Join []string `yaml:"join"`
	// RequestTimeout bounds how long a remote Request waits for a
	// response. Accepts Go duration syntax, e.g. "5s". Zero/empty
	// disables the timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// MaxFrameSize bounds the length prefix the framed cipher stream
	// accepts for a single record, e.g. "64mb".
	MaxFrameSize string `yaml:"max_frame_size"`
	// MaxFrameSizeRaw is MaxFrameSize parsed to bytes; not read from
	// YAML.
	MaxFrameSizeRaw int64 `yaml:"-"`
	// MaxBandwidth caps each connection's outbound write rate, e.g.
	// "10mb". Empty disables throttling.
	MaxBandwidth string `yaml:"max_bandwidth"`
	// MaxBandwidthRaw is MaxBandwidth parsed to bytes per second; not
	// read from YAML.
	MaxBandwidthRaw int64 `yaml:"-"`
}

// SecurityInfo selects the AEAD cipher protecting every connection and
// the optional mutual-TLS transport layer underneath it.
type SecurityInfo struct {
	// Cipher selects the record cipher: "aesgcm" (default) or "none"
	// (for tests, or when an outer TLS tunnel already provides
	// confidentiality).
	Cipher string `yaml:"cipher"`
	// KeyFile is the path to a raw 32-byte AES-256 key, required when
	// Cipher is "aesgcm".
	KeyFile string `yaml:"key_file"`
	// MTLS optionally wraps every connection in a mutually
	// authenticated TLS 1.3 handshake before the mesh handshake
	// begins.
	MTLS MTLSInfo `yaml:"mtls"`
}

// MTLSInfo configures the mesh's optional mTLS transport mode, backed
// by a certificate authority generated with the delix-ca command.
type MTLSInfo struct {
	Enabled      bool   `yaml:"enabled"`
	CACertFile   string `yaml:"ca_cert_file"`
	NodeCertFile string `yaml:"node_cert_file"`
	NodeKeyFile  string `yaml:"node_key_file"`
}

// DiscoveryInfo selects how this node finds mesh peers beyond the
// ones it was explicitly told to Join.
type DiscoveryInfo struct {
	// Mode is "constant" (the Join list is the entire membership) or
	// "multicast" (periodic LAN announcements).
	Mode      string          `yaml:"mode"`
	Multicast MulticastConfig `yaml:"multicast"`
}

// MulticastConfig configures the multicast discovery mode.
type MulticastConfig struct {
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
}

// MetricsInfo configures the optional metrics HTTP endpoint.
type MetricsInfo struct {
	ListenAddress string `yaml:"listen_address"`
}

// RelayInfo configures the optional HTTP-to-mesh relay endpoint.
type RelayInfo struct {
	ListenAddress string `yaml:"listen_address"`
	// AllowedCIDRs restricts which client addresses may reach the
	// relay; empty allows all.
	AllowedCIDRs []string `yaml:"allowed_cidrs"`
}

// LoggingInfo configures the process-wide logger.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and validates the YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Node.ListenAddress == "" {
		return fmt.Errorf("node.listen_address is required")
	}
	if c.Node.PublicAddress == "" {
		c.Node.PublicAddress = c.Node.ListenAddress
	}

	switch c.Security.Cipher {
	case "":
		c.Security.Cipher = "aesgcm"
	case "aesgcm":
		if c.Security.KeyFile == "" {
			return fmt.Errorf("security.key_file is required when security.cipher is %q", c.Security.Cipher)
		}
	case "none":
	default:
		return fmt.Errorf("security.cipher must be %q or %q, got %q", "aesgcm", "none", c.Security.Cipher)
	}

	if c.Security.MTLS.Enabled {
		if c.Security.MTLS.CACertFile == "" {
			return fmt.Errorf("security.mtls.ca_cert_file is required when security.mtls.enabled is true")
		}
		if c.Security.MTLS.NodeCertFile == "" {
			return fmt.Errorf("security.mtls.node_cert_file is required when security.mtls.enabled is true")
		}
		if c.Security.MTLS.NodeKeyFile == "" {
			return fmt.Errorf("security.mtls.node_key_file is required when security.mtls.enabled is true")
		}
	}

	switch c.Discovery.Mode {
	case "", "constant":
		c.Discovery.Mode = "constant"
	case "multicast":
		if c.Discovery.Multicast.Address == "" {
			return fmt.Errorf("discovery.multicast.address is required when discovery.mode is %q", "multicast")
		}
		if c.Discovery.Multicast.Interval <= 0 {
			c.Discovery.Multicast.Interval = 30 * time.Second
		}
	default:
		return fmt.Errorf("discovery.mode must be %q or %q, got %q", "constant", "multicast", c.Discovery.Mode)
	}

	if c.Mesh.MaxFrameSize == "" {
		c.Mesh.MaxFrameSize = "64mb"
	}
	frameSize, err := units.RAMInBytes(c.Mesh.MaxFrameSize)
	if err != nil {
		return fmt.Errorf("mesh.max_frame_size: %w", err)
	}
	c.Mesh.MaxFrameSizeRaw = frameSize

	if c.Mesh.MaxBandwidth != "" {
		bandwidth, err := units.RAMInBytes(c.Mesh.MaxBandwidth)
		if err != nil {
			return fmt.Errorf("mesh.max_bandwidth: %w", err)
		}
		c.Mesh.MaxBandwidthRaw = bandwidth
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	return nil
}
