package network

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/market"
	"github.com/tolelom/tolchain/wire"
)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// Node listens for incoming peers, manages outgoing connections, and routes
// every HotStuff message and client request it receives into a replica's
// inbound event channel.
type Node struct {
	selfID     consensus.NodeID
	selfPeerID string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain TCP
	maxPeers   int
	inbox      chan<- consensus.Event

	mu    sync.RWMutex
	peers map[string]*Peer

	listener net.Listener
	stopCh   chan struct{}
}

// NewNode creates a Node that will listen on listenAddr and feed every
// HotStuff and client message it receives into inbox.
func NewNode(selfID consensus.NodeID, selfPeerID, listenAddr string, inbox chan<- consensus.Event, tlsCfg *tls.Config) *Node {
	return &Node{
		selfID:     selfID,
		selfPeerID: selfPeerID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		inbox:      inbox,
		peers:      make(map[string]*Peer),
		stopCh:     make(chan struct{}),
	}
}

// Start begins accepting connections.
func (n *Node) Start() error {
	var ln net.Listener
	var err error
	if n.tlsConfig != nil {
		ln, err = tls.Listen("tcp", n.listenAddr, n.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", n.listenAddr)
	}
	if err != nil {
		return fmt.Errorf("listen %s: %w", n.listenAddr, err)
	}
	n.listener = ln
	go n.acceptLoop()
	return nil
}

// Stop shuts down the node.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

// AddPeer dials addr, performs the Hello handshake and registers the peer
// for outbound delivery.
func (n *Node) AddPeer(addr string) error {
	peer, err := Connect(addr, n.tlsConfig)
	if err != nil {
		return err
	}
	peer.Addr = addr
	if err := peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppHello, PeerID: n.selfPeerID})); err != nil {
		peer.Close()
		return fmt.Errorf("send hello to %s: %w", addr, err)
	}
	go n.readLoop(peer, true)
	return nil
}

// Peer returns the connected peer with the given peer id, or nil if absent.
func (n *Node) Peer(peerID string) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.peers[peerID]
}

// Broadcast sends msg to every connected peer.
func (n *Node) Broadcast(msg wire.Message) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] broadcast to %s: %v", p.PeerID, err)
		}
	}
}

// BroadcastHotStuff wraps m as a wire message and broadcasts it to every
// connected peer.
func (n *Node) BroadcastHotStuff(m consensus.HotStuffMessage) {
	n.Broadcast(wire.NewHotStuffMessage(m))
}

// SendHotStuff wraps m and delivers it to a single named peer.
func (n *Node) SendHotStuff(peerID string, m consensus.HotStuffMessage) error {
	peer := n.Peer(peerID)
	if peer == nil {
		return fmt.Errorf("no connection to peer %s", peerID)
	}
	return peer.Send(wire.NewHotStuffMessage(m))
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			select {
			case <-n.stopCh:
				return
			default:
				log.Printf("[network] accept error: %v", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}
		}
		n.mu.RLock()
		peerCount := len(n.peers)
		n.mu.RUnlock()
		if peerCount >= n.maxPeers {
			log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, conn.RemoteAddr())
			conn.Close()
			continue
		}
		peer := NewPeer("", conn.RemoteAddr().String(), conn)
		go n.readLoop(peer, false)
	}
}

// readLoop processes one connection's frames until it closes. The first
// message on every connection must be Application(Hello{peer_id}); any
// other first message is a protocol violation and the connection is
// dropped. outbound records whether this side dialed the connection, which
// decides which of two duplicate sockets to the same remote peer survives.
func (n *Node) readLoop(peer *Peer, outbound bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.PeerID, r)
		}
		peer.Close()
	}()

	first, err := peer.Receive()
	if err != nil {
		return
	}
	if first.Tag != wire.TagApplication || first.App.Kind != wire.AppHello {
		log.Printf("[network] protocol violation: first message from %s was not Hello", peer.Addr)
		return
	}
	peer.PeerID = first.App.PeerID
	if !n.registerPeer(peer, outbound) {
		return // a preferred duplicate connection already exists
	}
	defer n.unregisterPeer(peer)

	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.dispatch(peer, msg)
	}
}

// registerPeer applies the dedup rule: of two sockets between the same pair
// of nodes, the one whose connector side has the lexicographically smaller
// peer id survives. Returns false if peer lost the race and must close.
func (n *Node) registerPeer(peer *Peer, outbound bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	existing, ok := n.peers[peer.PeerID]
	if !ok {
		n.peers[peer.PeerID] = peer
		return true
	}
	preferOutboundFromSelf := n.selfPeerID < peer.PeerID
	if outbound == preferOutboundFromSelf {
		existing.Close()
		n.peers[peer.PeerID] = peer
		return true
	}
	return false
}

func (n *Node) unregisterPeer(peer *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.peers[peer.PeerID] == peer {
		delete(n.peers, peer.PeerID)
	}
}

func (n *Node) dispatch(peer *Peer, msg wire.Message) {
	switch msg.Tag {
	case wire.TagHotStuff:
		n.inbox <- consensus.Event{Kind: consensus.EventHotStuffMessage, Message: msg.HotStuff}
	case wire.TagApplication:
		n.dispatchApp(peer, msg.App)
	case wire.TagConnection:
		if msg.Control.Kind == wire.ControlEnd {
			peer.Close()
		}
	}
}

func (n *Node) dispatchApp(peer *Peer, app wire.AppMessage) {
	switch app.Kind {
	case wire.AppSubmitTransaction:
		n.inbox <- consensus.Event{Kind: consensus.EventTransaction, Tx: app.Tx}
	case wire.AppSubmitOrderCommand:
		n.inbox <- consensus.Event{Kind: consensus.EventOrderCommand, OrderCmd: app.Order}
	case wire.AppAccountQuery:
		n.answerQuery(peer, consensus.QueryRequest{Kind: consensus.QueryAccount, Account: app.Account})
	case wire.AppAssetQuery:
		n.answerQuery(peer, consensus.QueryRequest{Kind: consensus.QueryAsset})
	case wire.AppMarketsQuery:
		n.answerQuery(peer, consensus.QueryRequest{Kind: consensus.QueryMarkets})
	case wire.AppMarketInfoQuery:
		n.answerQuery(peer, consensus.QueryRequest{Kind: consensus.QueryMarketInfo, MarketID: app.Market})
	case wire.AppDrip:
		n.answerDrip(peer, app)
	default:
		log.Printf("[network] unhandled app message kind %d from %s", app.Kind, peer.PeerID)
	}
}

// answerQuery submits req to the replica and, once the synchronous reply
// arrives, sends the corresponding response back to peer.
func (n *Node) answerQuery(peer *Peer, req consensus.QueryRequest) {
	req.Reply = make(chan consensus.QueryResponse, 1)
	n.inbox <- consensus.Event{Kind: consensus.EventQuery, Query: &req}
	resp := <-req.Reply

	if resp.Err != nil {
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppError, ErrMsg: resp.Err.Error()}))
		return
	}
	switch req.Kind {
	case consensus.QueryAccount:
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppAccountResponse, AccountInfo: resp.Account}))
	case consensus.QueryAsset:
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppAssetResponse, Assets: resp.Assets}))
	case consensus.QueryMarkets:
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppMarketsResponse, Markets: marketIDs(resp.Markets)}))
	case consensus.QueryMarketInfo:
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppMarketInfoResponse, MarketInfo: resp.Market}))
	}
}

// answerDrip submits a DripRequest to the replica and relays the
// synchronous admission result back to peer as an Ack or Error.
func (n *Node) answerDrip(peer *Peer, app wire.AppMessage) {
	req := &consensus.DripRequest{Account: app.Account, AssetID: app.AssetID, Reply: make(chan error, 1)}
	n.inbox <- consensus.Event{Kind: consensus.EventDrip, Drip: req}
	if err := <-req.Reply; err != nil {
		_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppError, ErrMsg: err.Error()}))
		return
	}
	_ = peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppAck}))
}

func marketIDs(markets []*market.SpotMarket) []market.MarketID {
	ids := make([]market.MarketID, 0, len(markets))
	for _, m := range markets {
		ids = append(ids, m.ID)
	}
	return ids
}
