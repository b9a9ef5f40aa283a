package market

import (
	"fmt"

	"github.com/tolelom/tolchain/ledger"
)

// normalisePair orders an asset pair so that (a, b) and (b, a) always map
// to the same market.
func normalisePair(a, b AssetID) (AssetID, AssetID) {
	if a < b {
		return a, b
	}
	return b, a
}

// ClearingHouse owns every market for a replica and settles fills against
// the ledger. It is reached only from inside the replica task, so (like the
// ledger and mempool) it needs no internal locking.
type ClearingHouse struct {
	ledger    *ledger.Ledger
	nextID    MarketID
	markets   []*SpotMarket
	pairToID  map[[2]AssetID]MarketID
	nextOrder OrderID
}

// NewClearingHouse returns a ClearingHouse settling against l.
func NewClearingHouse(l *ledger.Ledger) *ClearingHouse {
	return &ClearingHouse{
		ledger:   l,
		pairToID: make(map[[2]AssetID]MarketID),
	}
}

// AddMarket registers a market for (base, quote), reusing an existing one
// if the normalised pair already has a market.
func (ch *ClearingHouse) AddMarket(base, quote AssetID, tickDecimals uint8) MarketID {
	a, b := normalisePair(base, quote)
	key := [2]AssetID{a, b}
	if id, ok := ch.pairToID[key]; ok {
		return id
	}
	id := ch.nextID
	m := NewSpotMarket(id, a, b)
	m.TickDecimals = tickDecimals
	ch.markets = append(ch.markets, m)
	ch.pairToID[key] = id
	ch.nextID++
	return id
}

// MarketByPair returns the market id for (base, quote), if one exists.
func (ch *ClearingHouse) MarketByPair(base, quote AssetID) (MarketID, bool) {
	a, b := normalisePair(base, quote)
	id, ok := ch.pairToID[[2]AssetID{a, b}]
	return id, ok
}

// Market returns the market with the given id, if any.
func (ch *ClearingHouse) Market(id MarketID) (*SpotMarket, bool) {
	for _, m := range ch.markets {
		if m.ID == id {
			return m, true
		}
	}
	return nil, false
}

// Markets returns every registered market, for MarketsQuery.
func (ch *ClearingHouse) Markets() []*SpotMarket {
	return ch.markets
}

// nextOrderID allocates a process-unique order id. Submission order doubles
// as the id ordering used for same-price time priority.
func (ch *ClearingHouse) nextOrderID() OrderID {
	ch.nextOrder++
	return ch.nextOrder
}

// settleFills applies every fill to the ledger: the maker's give-side was
// already locked when its order was admitted, so it is released from
// Total only; the maker's receive-side is credited in full.
func (ch *ClearingHouse) settleFills(m *SpotMarket, fills []Fill) {
	for _, f := range fills {
		if f.Direction == Sell {
			// maker sold base, receives quote
			ch.ledger.SettleFill(f.Account, m.BaseAsset, uint64(f.BaseLots), m.QuoteAsset, f.QuoteLots, true)
		} else {
			// maker bought base (gave quote), receives base
			ch.ledger.SettleFill(f.Account, m.QuoteAsset, f.QuoteLots, m.BaseAsset, uint64(f.BaseLots), true)
		}
	}
}

// settleTaker credits/debits the taker's side of a match. takerGaveLocked
// is false: a taker's give-side was never pre-locked (only resting orders
// lock), so it must still be debited from Available.
func (ch *ClearingHouse) settleTaker(account Account, giveAsset AssetID, giveAmount uint64, receiveAsset AssetID, receiveAmount uint64) {
	ch.ledger.SettleFill(account, giveAsset, giveAmount, receiveAsset, receiveAmount, false)
}

// PlaceLimitOrder locks the order's give-side balance, executes it against
// the book, settles every resulting fill and the taker's own matched
// portion, and returns the match result for the caller (the replica) to
// fold into the committed block's effects.
func (ch *ClearingHouse) PlaceLimitOrder(marketID MarketID, account Account, direction Direction, price uint64, baseLots uint32) (LimitFillResult, error) {
	m, ok := ch.Market(marketID)
	if !ok {
		return LimitFillResult{}, fmt.Errorf("market %d not found", marketID)
	}

	var giveAsset AssetID
	var giveAmount uint64
	if direction == Buy {
		giveAsset, giveAmount = m.QuoteAsset, uint64(baseLots)*price
	} else {
		giveAsset, giveAmount = m.BaseAsset, uint64(baseLots)
	}
	if !ch.ledger.Lock(account, giveAsset, giveAmount) {
		return LimitFillResult{}, fmt.Errorf("insufficient available balance to place order")
	}

	order := Order{ID: ch.nextOrderID(), Account: account, Direction: direction, Price: price, BaseLots: baseLots}
	result := m.AddLimitOrder(order)

	ch.settleFills(m, result.Fills)

	if result.TakerBaseLots > 0 {
		if direction == Buy {
			spent := result.TakerQuoteLots
			ch.settleTakerPartialLock(account, giveAsset, giveAmount, spent, m.BaseAsset, uint64(result.TakerBaseLots))
		} else {
			ch.settleTakerPartialLock(account, giveAsset, giveAmount, uint64(result.TakerBaseLots), m.QuoteAsset, result.TakerQuoteLots)
		}
	}
	// Any unfilled remainder stays locked against the resting order. A buy
	// that filled below its limit price locked more quote than it paid plus
	// what its resting remainder needs; that excess is released here.
	if direction == Buy {
		if excess := giveAmount - result.TakerQuoteLots - uint64(result.TakerRemaining)*price; excess > 0 {
			ch.ledger.Unlock(account, giveAsset, excess)
		}
	}
	return result, nil
}

// settleTakerPartialLock releases the portion of a taker's pre-lock that
// was actually consumed by matching (moving it out of Total via
// SettleFill) and credits what it received. The unconsumed remainder of
// the original lock stays locked, backing the resting residual order.
func (ch *ClearingHouse) settleTakerPartialLock(account Account, giveAsset AssetID, lockedAmount, consumedGive uint64, receiveAsset AssetID, receiveAmount uint64) {
	ai := ch.ledger.Account(account)
	_ = ai
	ch.ledger.SettleFill(account, giveAsset, consumedGive, receiveAsset, receiveAmount, true)
	if consumedGive < lockedAmount {
		// Nothing is released here; PlaceLimitOrder releases whatever part
		// of lockedAmount the resting remainder does not need.
		_ = lockedAmount
	}
}

// CancelOrder cancels order on marketID and releases its remaining locked
// balance back to Available.
func (ch *ClearingHouse) CancelOrder(marketID MarketID, order Order) error {
	m, ok := ch.Market(marketID)
	if !ok {
		return fmt.Errorf("market %d not found", marketID)
	}
	levels := m.AsksLevels
	if order.Direction == Buy {
		levels = m.BidsLevels
	}
	remaining, found := uint32(0), false
	for _, lv := range levels {
		for _, o := range lv.Orders {
			if lv.Price == order.Price && o.ID == order.ID && o.Account == order.Account && o.Status == StatusOpen {
				remaining, found = o.Remaining(), true
			}
		}
	}
	if !found {
		return nil
	}
	m.CancelOrder(order)

	var asset AssetID
	var amount uint64
	if order.Direction == Buy {
		asset, amount = m.QuoteAsset, uint64(remaining)*order.Price
	} else {
		asset, amount = m.BaseAsset, uint64(remaining)
	}
	ch.ledger.Unlock(order.Account, asset, amount)
	return nil
}

// ExecuteMarketOrder runs a market order on marketID and settles its fills.
func (ch *ClearingHouse) ExecuteMarketOrder(marketID MarketID, account Account, kind MarketOrderKind, size uint64) (MarketOrderMatchingResult, error) {
	m, ok := ch.Market(marketID)
	if !ok {
		return MarketOrderMatchingResult{}, fmt.Errorf("market %d not found", marketID)
	}

	switch kind {
	case SellInBase:
		if !ch.ledger.Lock(account, m.BaseAsset, size) {
			return MarketOrderMatchingResult{}, fmt.Errorf("insufficient available balance")
		}
		result := m.ExecuteMarketSellInBase(account, uint32(size))
		ch.settleFills(m, result.Fills)
		ch.ledger.SettleFill(account, m.BaseAsset, uint64(result.BaseLotsFilled), m.QuoteAsset, result.QuoteLotsSpent, true)
		if unfilled := size - uint64(result.BaseLotsFilled); unfilled > 0 {
			ch.ledger.Unlock(account, m.BaseAsset, unfilled)
		}
		return result, nil
	case BuyInQuote:
		if !ch.ledger.Lock(account, m.QuoteAsset, size) {
			return MarketOrderMatchingResult{}, fmt.Errorf("insufficient available balance")
		}
		result := m.ExecuteMarketBuyInQuote(account, size)
		ch.settleFills(m, result.Fills)
		ch.ledger.SettleFill(account, m.QuoteAsset, result.QuoteLotsSpent, m.BaseAsset, uint64(result.BaseLotsFilled), true)
		if unfilled := size - result.QuoteLotsSpent; unfilled > 0 {
			ch.ledger.Unlock(account, m.QuoteAsset, unfilled)
		}
		return result, nil
	default:
		return MarketOrderMatchingResult{}, fmt.Errorf("unknown market order kind %d", kind)
	}
}
