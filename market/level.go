package market

// Level is one price bucket: its resting orders in time-priority (insertion)
// order, the aggregate remaining volume of its non-cancelled orders, and a
// count of how many of its orders are tombstoned as Cancelled but not yet
// physically removed.
type Level struct {
	Price     uint64
	Volume    uint32
	Orders    []Order
	Cancelled uint32
}

// priceCmp orders levels so that, after insertion, the best price is
// always the last element of the slice: ascending for bids, descending for
// asks. cmp(a, b) must return -1 if a belongs strictly before b, 0 if the
// prices are equal, and 1 otherwise.
type priceCmp func(a, b uint64) int

func ascendingCmp(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func descendingCmp(a, b uint64) int {
	return ascendingCmp(b, a)
}

// insertOrder binary-searches levels for order.Price, aggregating into an
// existing level or inserting a new one at the correct sorted position.
func insertOrder(levels []*Level, order Order, cmp priceCmp) []*Level {
	price := order.Price
	left, right := 0, len(levels)
	for left < right {
		mid := left + (right-left)/2
		switch cmp(price, levels[mid].Price) {
		case 0:
			levels[mid].Volume += order.Remaining()
			levels[mid].Orders = append(levels[mid].Orders, order)
			return levels
		case -1:
			right = mid
		default:
			left = mid + 1
		}
	}
	newLevel := &Level{Price: price, Volume: order.Remaining(), Orders: []Order{order}}
	levels = append(levels, nil)
	copy(levels[left+1:], levels[left:])
	levels[left] = newLevel
	return levels
}

// markCancelled binary-searches a level's orders by id and flips it to
// Cancelled, returning the order's remaining (unfilled) base lots at the
// time of cancellation and true, or (0, false) if not found or already
// cancelled (cancellation is idempotent).
func markCancelled(orders []Order, id OrderID) (uint32, bool) {
	left, right := 0, len(orders)
	for left < right {
		mid := left + (right-left)/2
		switch {
		case id == orders[mid].ID:
			if orders[mid].Status == StatusCancelled {
				return 0, false
			}
			orders[mid].Status = StatusCancelled
			return orders[mid].Remaining(), true
		case id < orders[mid].ID:
			right = mid
		default:
			left = mid + 1
		}
	}
	return 0, false
}

// cancelOrder binary-searches levels for order.Price, marks the matching
// order cancelled, adjusts the level's volume and cancelled counter, and
// physically prunes cancelled orders once they exceed half the level once
// the threshold is crossed (amortised O(1) per cancellation).
func cancelOrder(levels []*Level, order Order, cmp priceCmp) []*Level {
	price := order.Price
	left, right := 0, len(levels)
	for left < right {
		mid := left + (right-left)/2
		switch cmp(price, levels[mid].Price) {
		case 0:
			level := levels[mid]
			remaining, ok := markCancelled(level.Orders, order.ID)
			if !ok {
				return levels
			}
			level.Cancelled++
			level.Volume -= remaining
			if level.Cancelled <= uint32(len(level.Orders))/2 {
				return levels
			}
			pruned := level.Orders[:0]
			for _, o := range level.Orders {
				if o.Status != StatusCancelled {
					pruned = append(pruned, o)
				}
			}
			level.Orders = pruned
			level.Cancelled = 0
			return levels
		case -1:
			right = mid
		default:
			left = mid + 1
		}
	}
	return levels
}
