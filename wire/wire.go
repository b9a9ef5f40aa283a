// Package wire defines the canonical binary encoding exchanged over every
// peer and client socket: a u32 big-endian length prefix followed by a
// tagged-union payload. The same Encoder/Decoder primitives the consensus
// layer uses for content hashing are reused here, so the wire format and the
// hashing format share one implementation.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

// MaxFrameSize bounds a single payload so a malformed length prefix can
// never make a reader allocate an unbounded buffer.
const MaxFrameSize = 32 << 20

// Tag discriminates the top-level Message union.
type Tag byte

const (
	TagConnection Tag = iota
	TagApplication
	TagHotStuff
)

// ControlKind discriminates ControlMessage variants.
type ControlKind byte

const (
	ControlEnd ControlKind = iota
)

// ControlMessage is the connection-lifecycle variant of Message.
type ControlMessage struct {
	Kind ControlKind
}

// AppKind discriminates AppMessage variants.
type AppKind byte

const (
	AppHello AppKind = iota
	AppSubmitTransaction
	AppSubmitOrderCommand
	AppQuery
	AppAccountQuery
	AppAssetQuery
	AppMarketsQuery
	AppMarketInfoQuery
	AppDrip
	AppAccountResponse
	AppAssetResponse
	AppMarketsResponse
	AppMarketInfoResponse
	AppAck
	AppError
)

// AppMessage is the client/application-level variant of Message. Only the
// fields relevant to Kind are meaningful.
type AppMessage struct {
	Kind AppKind

	PeerID string // Hello

	Tx    *ledger.SignedTransaction  // SubmitTransaction
	Order *market.SignedOrderCommand // SubmitOrderCommand

	Account ledger.Account  // AccountQuery / Drip
	AssetID ledger.AssetID  // Drip
	Market  market.MarketID // MarketInfoQuery

	AccountInfo *ledger.AccountInfo // AccountResponse
	Assets      []market.Asset      // AssetResponse
	Markets     []market.MarketID   // MarketsResponse
	MarketInfo  *market.SpotMarket  // MarketInfoResponse

	ErrMsg string // Error
}

// Message is the top-level tagged union carried over the wire.
type Message struct {
	Tag        Tag
	Control    ControlMessage
	App        AppMessage
	HotStuff   consensus.HotStuffMessage
	hasHS      bool
}

// NewConnectionMessage wraps a ControlMessage.
func NewConnectionMessage(c ControlMessage) Message {
	return Message{Tag: TagConnection, Control: c}
}

// NewApplicationMessage wraps an AppMessage.
func NewApplicationMessage(a AppMessage) Message {
	return Message{Tag: TagApplication, App: a}
}

// NewHotStuffMessage wraps a consensus.HotStuffMessage.
func NewHotStuffMessage(m consensus.HotStuffMessage) Message {
	return Message{Tag: TagHotStuff, HotStuff: m, hasHS: true}
}

// WriteFrame encodes msg and writes it to w as a length-prefixed frame.
func WriteFrame(w io.Writer, msg Message) error {
	payload, err := Encode(msg)
	if err != nil {
		return err
	}
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("wire: payload of %d bytes exceeds max frame size", len(payload))
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r and decodes it.
func ReadFrame(r *bufio.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Message{}, fmt.Errorf("wire: frame of %d bytes exceeds max frame size", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Message{}, fmt.Errorf("wire: read payload: %w", err)
	}
	return Decode(buf)
}

// Encode serializes msg into the canonical binary payload (the part that
// follows the length prefix).
func Encode(msg Message) ([]byte, error) {
	enc := crypto.NewEncoder()
	enc.Byte(byte(msg.Tag))
	switch msg.Tag {
	case TagConnection:
		enc.Byte(byte(msg.Control.Kind))
	case TagApplication:
		encodeApp(enc, msg.App)
	case TagHotStuff:
		encodeHotStuff(enc, msg.HotStuff)
	default:
		return nil, fmt.Errorf("wire: unknown message tag %d", msg.Tag)
	}
	return enc.Build(), nil
}

// Decode parses a canonical binary payload back into a Message.
func Decode(buf []byte) (Message, error) {
	dec := crypto.NewDecoder(buf)
	tagByte, err := dec.Byte()
	if err != nil {
		return Message{}, err
	}
	switch Tag(tagByte) {
	case TagConnection:
		kind, err := dec.Byte()
		if err != nil {
			return Message{}, err
		}
		return Message{Tag: TagConnection, Control: ControlMessage{Kind: ControlKind(kind)}}, nil
	case TagApplication:
		app, err := decodeApp(dec)
		if err != nil {
			return Message{}, err
		}
		return Message{Tag: TagApplication, App: app}, nil
	case TagHotStuff:
		hs, err := decodeHotStuff(dec)
		if err != nil {
			return Message{}, err
		}
		return Message{Tag: TagHotStuff, HotStuff: hs, hasHS: true}, nil
	default:
		return Message{}, fmt.Errorf("wire: unknown message tag %d", tagByte)
	}
}
