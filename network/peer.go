// Package network handles peer-to-peer and client communication over TCP
// using the length-prefixed canonical binary framing defined in wire.
package network

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tolelom/tolchain/wire"
)

// Peer represents a connected remote node. PeerID is set once the Hello
// handshake completes; Addr is the dial/accept address.
type Peer struct {
	PeerID string
	Addr   string

	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an established TCP connection as a Peer.
func NewPeer(peerID, addr string, conn net.Conn) *Peer {
	return &Peer{PeerID: peerID, Addr: addr, conn: conn, reader: bufio.NewReader(conn)}
}

// Connect dials the remote address and returns a connected Peer.
// If tlsCfg is non-nil the connection is established over TLS.
func Connect(addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer("", addr, conn), nil
}

// Send writes a length-prefixed wire message to the peer.
func (p *Peer) Send(msg wire.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.PeerID)
	}
	return wire.WriteFrame(p.conn, msg)
}

// Receive reads the next length-prefixed wire message. A 30-second read
// deadline prevents a stalled peer from blocking indefinitely.
func (p *Peer) Receive() (wire.Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	return wire.ReadFrame(p.reader)
}

// Close terminates the peer connection. Idempotent.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
