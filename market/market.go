package market

// MarketID identifies a spot market within a clearinghouse.
type MarketID uint32

// SpotMarket is one base/quote trading pair: two sorted level books, bids
// ascending and asks descending, so that the best price on either side is
// always the last element (O(1) pop/peek); insertion and cancellation are
// binary-searched in O(log L) over the number of distinct price levels.
type SpotMarket struct {
	ID           MarketID
	BaseAsset    AssetID
	QuoteAsset   AssetID
	TickDecimals uint8

	BidsLevels []*Level // ascending: best bid is the last element
	AsksLevels []*Level // descending: best ask is the last element
}

// NewSpotMarket returns an empty market for the given asset pair.
func NewSpotMarket(id MarketID, base, quote AssetID) *SpotMarket {
	return &SpotMarket{ID: id, BaseAsset: base, QuoteAsset: quote}
}

// GetBestPrices returns the best bid and best ask, or false if that side of
// the book is empty.
func (m *SpotMarket) GetBestPrices() (bid uint64, hasBid bool, ask uint64, hasAsk bool) {
	if n := len(m.BidsLevels); n > 0 {
		bid, hasBid = m.BidsLevels[n-1].Price, true
	}
	if n := len(m.AsksLevels); n > 0 {
		ask, hasAsk = m.AsksLevels[n-1].Price, true
	}
	return
}

func (m *SpotMarket) addBid(o Order) {
	m.BidsLevels = insertOrder(m.BidsLevels, o, ascendingCmp)
}

func (m *SpotMarket) addAsk(o Order) {
	m.AsksLevels = insertOrder(m.AsksLevels, o, descendingCmp)
}

// CancelOrder cancels o (identified by ID, Direction and Price) if it is
// still resting and not already cancelled. Cancellation is idempotent: a
// repeat call on an already-cancelled id is a no-op.
func (m *SpotMarket) CancelOrder(o Order) {
	if o.Direction == Buy {
		m.BidsLevels = cancelOrder(m.BidsLevels, o, ascendingCmp)
	} else {
		m.AsksLevels = cancelOrder(m.AsksLevels, o, descendingCmp)
	}
}

// executeAgainst drains levels (best price last) against an incoming taker
// order, filling resting orders in time priority. qualifies reports whether
// the level at levelPrice can still trade against the taker's limit price;
// it is the caller's job to pass a direction-appropriate comparison.
func executeAgainst(levels []*Level, taker Order, qualifies func(levelPrice, takerPrice uint64) bool) ([]*Level, LimitFillResult) {
	var result LimitFillResult
	remaining := taker.Remaining()

	for len(levels) > 0 && remaining > 0 {
		level := levels[len(levels)-1]
		if !qualifies(level.Price, taker.Price) {
			break
		}
		result.LastPrice = level.Price

		drainEnd := 0
		cancelledDrained := uint32(0)
		for i := range level.Orders {
			o := &level.Orders[i]
			if o.Status == StatusCancelled {
				drainEnd = i + 1
				cancelledDrained++
				continue
			}
			orderRemaining := o.Remaining()
			filled := remaining
			if orderRemaining < filled {
				filled = orderRemaining
			}
			remaining -= filled
			o.FilledBaseLots += filled
			level.Volume -= filled

			quoteLots := baseToQuoteLots(filled, level.Price, 0)
			result.Fills = append(result.Fills, Fill{
				OrderID: o.ID, Account: o.Account, Direction: o.Direction,
				BaseLots: filled, QuoteLots: quoteLots, Price: level.Price,
			})
			result.TakerBaseLots += filled
			result.TakerQuoteLots += quoteLots

			if filled == orderRemaining {
				drainEnd = i + 1
			}
			if remaining == 0 {
				if filled < orderRemaining {
					result.Residual = &Residual{
						OrderID: o.ID, Account: o.Account, Direction: o.Direction,
						Price: level.Price, FilledBaseLots: o.FilledBaseLots,
					}
				}
				break
			}
		}

		if drainEnd < len(level.Orders) {
			level.Orders = level.Orders[drainEnd:]
			level.Cancelled -= cancelledDrained
			break
		}
		// Level fully drained; pop it and continue to the next best price.
		levels = levels[:len(levels)-1]
	}

	result.TakerRemaining = remaining
	return levels, result
}

func crossesAsk(levelPrice, takerPrice uint64) bool { return levelPrice <= takerPrice }
func crossesBid(levelPrice, takerPrice uint64) bool { return levelPrice >= takerPrice }

// AddLimitOrder admits a new limit order: a Buy whose price is at or above
// the best ask executes against the ask book (any remainder rests as a
// bid); a Sell whose price is at or below the best bid executes against
// the bid book (any remainder rests as an ask); otherwise it rests
// directly.
func (m *SpotMarket) AddLimitOrder(o Order) LimitFillResult {
	_, hasBid, bestAsk, hasAsk := m.GetBestPrices()
	_ = hasBid

	switch o.Direction {
	case Buy:
		if hasAsk && bestAsk <= o.Price {
			var result LimitFillResult
			m.AsksLevels, result = executeAgainst(m.AsksLevels, o, crossesAsk)
			if result.TakerRemaining > 0 {
				o.FilledBaseLots = o.BaseLots - result.TakerRemaining
				m.addBid(o)
			}
			return result
		}
		m.addBid(o)
		return LimitFillResult{TakerRemaining: o.BaseLots}
	default: // Sell
		bestBid, hasBid2, _, _ := m.GetBestPrices()
		if hasBid2 && bestBid >= o.Price {
			var result LimitFillResult
			m.BidsLevels, result = executeAgainst(m.BidsLevels, o, crossesBid)
			if result.TakerRemaining > 0 {
				o.FilledBaseLots = o.BaseLots - result.TakerRemaining
				m.addAsk(o)
			}
			return result
		}
		m.addAsk(o)
		return LimitFillResult{TakerRemaining: o.BaseLots}
	}
}

func alwaysQualifies(uint64, uint64) bool { return true }

// ExecuteMarketSellInBase sells up to baseLots of the base asset into the
// bid book at whatever price the book offers, best price first. Any
// portion the bid book cannot absorb is left unfilled; market orders never
// rest.
func (m *SpotMarket) ExecuteMarketSellInBase(account Account, baseLots uint32) MarketOrderMatchingResult {
	taker := Order{Account: account, Direction: Sell, BaseLots: baseLots}
	var fillResult LimitFillResult
	m.BidsLevels, fillResult = executeAgainst(m.BidsLevels, taker, alwaysQualifies)
	return MarketOrderMatchingResult{
		Kind:           SellInBase,
		Fills:          fillResult.Fills,
		Residual:       fillResult.Residual,
		BaseLotsFilled: baseLots - fillResult.TakerRemaining,
		QuoteLotsSpent: fillResult.TakerQuoteLots,
		LastPrice:      fillResult.LastPrice,
	}
}

// ExecuteMarketBuyInQuote spends up to quoteBudget of the quote asset
// buying from the ask book at whatever price the book offers, best price
// first, stopping once the ask book is exhausted or the budget can no
// longer afford even one more base lot at the current best ask.
func (m *SpotMarket) ExecuteMarketBuyInQuote(account Account, quoteBudget uint64) MarketOrderMatchingResult {
	var result MarketOrderMatchingResult
	result.Kind = BuyInQuote
	levels := m.AsksLevels

	for len(levels) > 0 && quoteBudget > 0 {
		level := levels[len(levels)-1]
		if quoteBudget/level.Price == 0 {
			break
		}
		result.LastPrice = level.Price

		drainEnd := 0
		cancelledDrained := uint32(0)
		exhaustedBudget := false
		for i := range level.Orders {
			o := &level.Orders[i]
			if o.Status == StatusCancelled {
				drainEnd = i + 1
				cancelledDrained++
				continue
			}
			orderRemaining := o.Remaining()
			affordable := quoteBudget / level.Price // base lots the remaining budget can still afford
			if affordable == 0 {
				exhaustedBudget = true
				break
			}
			filled := orderRemaining
			if affordable < uint64(filled) {
				filled = uint32(affordable)
			}
			spend := uint64(filled) * level.Price
			quoteBudget -= spend
			o.FilledBaseLots += filled
			level.Volume -= filled

			result.Fills = append(result.Fills, Fill{
				OrderID: o.ID, Account: o.Account, Direction: o.Direction,
				BaseLots: filled, QuoteLots: spend, Price: level.Price,
			})
			result.BaseLotsFilled += filled
			result.QuoteLotsSpent += spend

			if filled == orderRemaining {
				drainEnd = i + 1
			} else {
				result.Residual = &Residual{
					OrderID: o.ID, Account: o.Account, Direction: o.Direction,
					Price: level.Price, FilledBaseLots: o.FilledBaseLots,
				}
				exhaustedBudget = true
				break
			}
		}

		if drainEnd < len(level.Orders) {
			level.Orders = level.Orders[drainEnd:]
			level.Cancelled -= cancelledDrained
			break
		}
		levels = levels[:len(levels)-1]
		if exhaustedBudget {
			break
		}
	}

	m.AsksLevels = levels
	return result
}
