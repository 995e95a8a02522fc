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

package discovery

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/robfig/cron/v3"
)

const packetSize = 16

type packetKind byte

const (
	kindAsk  packetKind = 0
	kindTell packetKind = 1
)

// Multicast discovers peers on the local network by periodically
// broadcasting an ask packet to a multicast group and collecting the
// tell replies other nodes send back, per the source's ask/tell UDP
// protocol. Unlike the source's single mpsc-channel-per-call design,
// every reply is funneled into one buffered channel that Next drains,
// since Go has no equivalent of registering a fresh one-shot reply
// channel per call without a second layer of bookkeeping.
type Multicast struct {
	conn          *net.UDPConn
	multicastAddr *net.UDPAddr
	publicAddr    *net.UDPAddr

	found  chan string
	cron   *cron.Cron
	logger *slog.Logger
}

// NewMulticast joins the multicast group at multicastAddress,
// re-announcing this node's publicAddress to the group every
// interval.
func NewMulticast(multicastAddress, publicAddress string, interval time.Duration, logger *slog.Logger) (*Multicast, error) {
	if logger == nil {
		logger = slog.Default()
	}

	groupAddr, err := net.ResolveUDPAddr("udp4", multicastAddress)
	if err != nil {
		return nil, fmt.Errorf("resolving multicast address %s: %w", multicastAddress, err)
	}
	pubAddr, err := net.ResolveUDPAddr("udp4", publicAddress)
	if err != nil {
		return nil, fmt.Errorf("resolving public address %s: %w", publicAddress, err)
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("joining multicast group %s: %w", multicastAddress, err)
	}

	m := &Multicast{
		conn:          conn,
		multicastAddr: groupAddr,
		publicAddr:    pubAddr,
		found:         make(chan string, 64),
		logger:        logger,
	}

	go m.listen()

	m.cron = cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if _, err := m.cron.AddFunc(fmt.Sprintf("@every %s", interval), m.ask); err != nil {
		conn.Close()
		return nil, fmt.Errorf("scheduling multicast announce: %w", err)
	}
	m.cron.Start()
	m.ask()

	return m, nil
}

// Next blocks until another node's tell reply arrives, or the
// Multicast is closed.
func (m *Multicast) Next() (string, bool) {
	address, ok := <-m.found
	return address, ok
}

// Close stops the announce schedule and the background listener.
func (m *Multicast) Close() error {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
	err := m.conn.Close()
	return err
}

func (m *Multicast) ask() {
	if err := m.send(kindAsk, m.publicAddr); err != nil {
		m.logger.Warn("sending multicast ask", "error", err)
	}
}

func (m *Multicast) listen() {
	defer close(m.found)
	buf := make([]byte, packetSize)
	for {
		n, sender, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n != packetSize {
			continue
		}
		kind, addr := unpackPacket(buf)

		switch kind {
		case kindAsk:
			if addr.String() == m.publicAddr.String() {
				continue
			}
			if err := m.replyTo(sender); err != nil {
				m.logger.Warn("replying to multicast ask", "peer", sender, "error", err)
			}
		case kindTell:
			select {
			case m.found <- addr.String():
			default:
				m.logger.Warn("dropping multicast discovery reply, channel full", "address", addr)
			}
		}
	}
}

func (m *Multicast) replyTo(destination *net.UDPAddr) error {
	packet := packPacket(kindTell, m.publicAddr)
	_, err := m.conn.WriteToUDP(packet, destination)
	return err
}

func (m *Multicast) send(kind packetKind, address *net.UDPAddr) error {
	packet := packPacket(kind, address)
	_, err := m.conn.WriteToUDP(packet, m.multicastAddr)
	return err
}

func packPacket(kind packetKind, addr *net.UDPAddr) []byte {
	p := make([]byte, packetSize)
	p[0] = byte(kind)

	ip4 := addr.IP.To4()
	if ip4 != nil {
		copy(p[1:5], ip4)
		p[5] = byte(addr.Port >> 8)
		p[6] = byte(addr.Port)
	}
	return p
}

func unpackPacket(p []byte) (packetKind, *net.UDPAddr) {
	kind := packetKind(p[0])
	ip := net.IPv4(p[1], p[2], p[3], p[4])
	port := int(p[5])<<8 | int(p[6])
	return kind, &net.UDPAddr{IP: ip, Port: port}
}
