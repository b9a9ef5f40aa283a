package market

import "github.com/tolelom/tolchain/ledger"

// OrderID uniquely identifies an order within a market, assigned in
// submission order so that id comparisons double as tie-breaks for
// orders resting at the same price.
type OrderID uint64

// Direction is the side of the book an order rests on or consumes.
type Direction int

const (
	Buy Direction = iota
	Sell
)

// Status is an order's lifecycle state. Orders are never removed from a
// Level on fill; they are drained once fully filled, or marked Cancelled
// and pruned later (see cancelOrder).
type Status int

const (
	StatusOpen Status = iota
	StatusCancelled
)

// Order is a resting or incoming limit order. BaseLots and FilledBaseLots are
// denominated in base-asset lots; Price is quote per base lot.
type Order struct {
	ID             OrderID
	Account        ledger.Account
	Direction      Direction
	Price          uint64
	BaseLots       uint32
	FilledBaseLots uint32
	Status         Status
}

// Remaining returns the order's unfilled base lots.
func (o Order) Remaining() uint32 {
	return o.BaseLots - o.FilledBaseLots
}

// Fill is one maker's contribution to an execution: it gave BaseLots of the
// base asset (or received them, depending on which side it rested on) at
// Price, settled for QuoteLots of the quote asset.
type Fill struct {
	OrderID   OrderID
	Account   ledger.Account
	Direction Direction
	BaseLots  uint32
	QuoteLots uint64
	Price     uint64
}

// Residual is the single maker order that was partially filled by an
// incoming match. It remains resting at the head of its level with
// FilledBaseLots updated; this record is what the caller needs to settle
// the maker's side of that partial fill.
type Residual struct {
	OrderID        OrderID
	Account        ledger.Account
	Direction      Direction
	Price          uint64
	FilledBaseLots uint32
}

// LimitFillResult is the outcome of crossing an incoming limit order against
// the opposite book before any uncrossed remainder is inserted as a resting
// order.
type LimitFillResult struct {
	Fills           []Fill
	Residual        *Residual
	TakerBaseLots   uint32 // base lots filled for the taker
	TakerQuoteLots  uint64 // quote lots the taker paid/received
	LastPrice       uint64
	TakerRemaining  uint32 // base lots left unfilled, to be inserted as a resting order (0 if fully filled)
}

// MarketOrderKind distinguishes the two market order denominations.
type MarketOrderKind int

const (
	// SellInBase consumes the bid book; size is denominated in base lots.
	SellInBase MarketOrderKind = iota
	// BuyInQuote consumes the ask book; size is denominated in quote lots
	// the taker is willing to spend.
	BuyInQuote
)

// MarketOrderMatchingResult is the outcome of a market order.
type MarketOrderMatchingResult struct {
	Kind           MarketOrderKind
	Fills          []Fill
	Residual       *Residual
	BaseLotsFilled uint32
	QuoteLotsSpent uint64
	LastPrice      uint64
}

// baseToQuoteLots converts baseLots traded at price into quote lots,
// rounding down so that fills never mint quote value out of rounding.
// tickDecimals is reserved for future fractional-tick pricing; the current
// price representation is already an integer quote-per-base-lot rate, so
// the conversion is a plain multiplication.
func baseToQuoteLots(baseLots uint32, price uint64, tickDecimals uint8) uint64 {
	_ = tickDecimals
	return uint64(baseLots) * price
}
