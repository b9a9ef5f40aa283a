package market

import "testing"

func mkOrder(id OrderID, price uint64, baseLots uint32, dir Direction) Order {
	return Order{ID: id, Price: price, BaseLots: baseLots, Direction: dir}
}

func TestAddBidOrderInsertsAscending(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	m.addBid(mkOrder(1, 100, 10, Buy))
	m.addBid(mkOrder(2, 105, 5, Buy))
	m.addBid(mkOrder(3, 103, 7, Buy))
	m.addBid(mkOrder(4, 1, 7, Buy))

	if len(m.BidsLevels) != 4 {
		t.Fatalf("levels = %d, want 4", len(m.BidsLevels))
	}
	if m.BidsLevels[len(m.BidsLevels)-1].Price != 105 {
		t.Fatalf("best bid = %d, want 105", m.BidsLevels[len(m.BidsLevels)-1].Price)
	}
	if m.BidsLevels[0].Price != 1 {
		t.Fatalf("worst bid = %d, want 1", m.BidsLevels[0].Price)
	}
}

func TestAddAskOrderInsertsDescending(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	m.addAsk(mkOrder(1, 110, 8, Sell))
	m.addAsk(mkOrder(2, 1000, 8, Sell))
	m.addAsk(mkOrder(5, 1000, 10, Sell))
	m.addAsk(mkOrder(3, 107, 6, Sell))
	m.addAsk(mkOrder(4, 109, 4, Sell))

	if len(m.AsksLevels) != 4 {
		t.Fatalf("levels = %d, want 4", len(m.AsksLevels))
	}
	if m.AsksLevels[len(m.AsksLevels)-1].Price != 107 {
		t.Fatalf("best ask = %d, want 107", m.AsksLevels[len(m.AsksLevels)-1].Price)
	}
	if m.AsksLevels[0].Volume != 18 {
		t.Fatalf("aggregated volume at 1000 = %d, want 18", m.AsksLevels[0].Volume)
	}
}

func TestCancelOrderIdempotent(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	o := mkOrder(1, 100, 10, Buy)
	m.addBid(o)
	// Three more orders at the same price keep a single cancellation below
	// the pruning threshold, so the cancelled order stays as a tombstone.
	m.addBid(mkOrder(2, 100, 10, Buy))
	m.addBid(mkOrder(3, 100, 10, Buy))
	m.addBid(mkOrder(4, 100, 10, Buy))

	m.CancelOrder(o)
	level := m.BidsLevels[0]
	if level.Cancelled != 1 || level.Volume != 30 {
		t.Fatalf("after first cancel: cancelled=%d volume=%d", level.Cancelled, level.Volume)
	}

	m.CancelOrder(o) // repeat: no-op
	if level.Cancelled != 1 || level.Volume != 30 {
		t.Fatalf("cancel not idempotent: cancelled=%d volume=%d", level.Cancelled, level.Volume)
	}
}

func TestCancellationPruningAtHalfThreshold(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	orders := []Order{
		mkOrder(1, 1, 8, Buy),
		mkOrder(2, 1, 6, Buy),
		mkOrder(3, 1, 4, Buy),
		mkOrder(4, 1, 10, Buy),
		mkOrder(5, 1, 9, Buy),
		mkOrder(6, 1, 7, Buy),
	}
	for _, o := range orders {
		m.addBid(o)
	}
	level := m.BidsLevels[0]
	if len(level.Orders) != 6 {
		t.Fatalf("orders = %d, want 6", len(level.Orders))
	}

	m.CancelOrder(orders[0])
	m.CancelOrder(orders[1])
	if level.Cancelled != 2 || len(level.Orders) != 6 {
		t.Fatalf("after 2 cancels: cancelled=%d len=%d, want 2,6", level.Cancelled, len(level.Orders))
	}

	m.CancelOrder(orders[2]) // 3rd cancel crosses len/2 == 3, triggers prune
	if level.Cancelled != 0 {
		t.Fatalf("cancelled counter after prune = %d, want 0", level.Cancelled)
	}
	if len(level.Orders) != 3 {
		t.Fatalf("orders after prune = %d, want 3", len(level.Orders))
	}
}

// Scenario 5 from spec.md §8: asks (2500,1100,#1), (2500,800,#2),
// (2550,1000,#3)[cancelled], (2550,600,#4); incoming buy limit (2550,2000,#7).
func TestLimitOrderCrossingScenario(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	o1 := mkOrder(1, 2500, 1100, Sell)
	o2 := mkOrder(2, 2500, 800, Sell)
	o3 := mkOrder(3, 2550, 1000, Sell)
	o4 := mkOrder(4, 2550, 600, Sell)
	m.addAsk(o1)
	m.addAsk(o2)
	m.addAsk(o3)
	m.addAsk(o4)
	m.CancelOrder(o3)

	buy := mkOrder(7, 2550, 2000, Buy)
	result := m.AddLimitOrder(buy)

	if result.TakerBaseLots != 2000 {
		t.Fatalf("taker filled = %d, want 2000", result.TakerBaseLots)
	}
	wantQuote := uint64(2500*1900 + 2550*100)
	if result.TakerQuoteLots != wantQuote {
		t.Fatalf("taker quote out = %d, want %d", result.TakerQuoteLots, wantQuote)
	}
	if result.Residual == nil || result.Residual.OrderID != 4 || result.Residual.FilledBaseLots != 100 {
		t.Fatalf("residual = %+v, want order 4 filled 100", result.Residual)
	}

	bestBid, hasBid, bestAsk, hasAsk := m.GetBestPrices()
	if hasBid {
		t.Fatalf("unexpected resting bid at %d (order fully filled)", bestBid)
	}
	if !hasAsk || bestAsk != 2550 {
		t.Fatalf("best ask = %d (hasAsk=%v), want 2550", bestAsk, hasAsk)
	}
	if m.AsksLevels[len(m.AsksLevels)-1].Volume != 500 {
		t.Fatalf("remaining level volume = %d, want 500", m.AsksLevels[len(m.AsksLevels)-1].Volume)
	}
}

func TestMarketSellInBaseConsumesBidBook(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	m.addBid(mkOrder(1, 100, 10, Buy))
	m.addBid(mkOrder(2, 105, 5, Buy))

	result := m.ExecuteMarketSellInBase(Account{}, 12)
	if result.BaseLotsFilled != 12 {
		t.Fatalf("filled = %d, want 12", result.BaseLotsFilled)
	}
	wantQuote := uint64(105*5 + 100*7)
	if result.QuoteLotsSpent != wantQuote {
		t.Fatalf("quote spent = %d, want %d", result.QuoteLotsSpent, wantQuote)
	}
}

func TestMarketBuyInQuoteConsumesAskBook(t *testing.T) {
	m := NewSpotMarket(0, 0, 1)
	m.addAsk(mkOrder(1, 100, 10, Sell)) // best ask
	m.addAsk(mkOrder(2, 105, 10, Sell))

	// Exactly buys all 10 lots at 100, then 2 more lots at 105.
	result := m.ExecuteMarketBuyInQuote(Account{}, 1000+210)
	if result.BaseLotsFilled != 12 {
		t.Fatalf("base filled = %d, want 12", result.BaseLotsFilled)
	}
	if result.QuoteLotsSpent != 1000+210 {
		t.Fatalf("quote spent = %d, want %d", result.QuoteLotsSpent, 1000+210)
	}
	if result.Residual == nil || result.Residual.OrderID != 2 || result.Residual.FilledBaseLots != 2 {
		t.Fatalf("residual = %+v, want order 2 filled 2", result.Residual)
	}
}
