package wire

import (
	"fmt"
	"sort"

	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
)

func encodeApp(enc *crypto.Encoder, a AppMessage) {
	enc.Byte(byte(a.Kind))
	switch a.Kind {
	case AppHello:
		enc.Bytes([]byte(a.PeerID))
	case AppSubmitTransaction:
		encodeSignedTransaction(enc, a.Tx)
	case AppSubmitOrderCommand:
		encodeSignedOrderCommand(enc, a.Order)
	case AppQuery, AppAssetQuery, AppMarketsQuery, AppAck:
		// no payload
	case AppAccountQuery:
		enc.Fixed(a.Account[:])
	case AppMarketInfoQuery:
		enc.Uint32(uint32(a.Market))
	case AppDrip:
		enc.Fixed(a.Account[:])
		enc.Uint32(uint32(a.AssetID))
	case AppAccountResponse:
		encodeAccountInfo(enc, a.AccountInfo)
	case AppAssetResponse:
		enc.Uint32(uint32(len(a.Assets)))
		for _, as := range a.Assets {
			enc.Uint32(uint32(as.ID))
			enc.Bytes([]byte(as.Symbol))
			enc.Byte(as.Decimals)
		}
	case AppMarketsResponse:
		enc.Uint32(uint32(len(a.Markets)))
		for _, id := range a.Markets {
			enc.Uint32(uint32(id))
		}
	case AppMarketInfoResponse:
		encodeSpotMarket(enc, a.MarketInfo)
	case AppError:
		enc.Bytes([]byte(a.ErrMsg))
	}
}

func decodeApp(dec *crypto.Decoder) (AppMessage, error) {
	kindByte, err := dec.Byte()
	if err != nil {
		return AppMessage{}, err
	}
	a := AppMessage{Kind: AppKind(kindByte)}
	switch a.Kind {
	case AppHello:
		b, err := dec.Bytes()
		if err != nil {
			return a, err
		}
		a.PeerID = string(b)
	case AppSubmitTransaction:
		tx, err := decodeSignedTransaction(dec)
		if err != nil {
			return a, err
		}
		a.Tx = tx
	case AppSubmitOrderCommand:
		oc, err := decodeSignedOrderCommand(dec)
		if err != nil {
			return a, err
		}
		a.Order = oc
	case AppQuery, AppAssetQuery, AppMarketsQuery, AppAck:
		// no payload
	case AppAccountQuery:
		b, err := dec.Fixed(32)
		if err != nil {
			return a, err
		}
		copy(a.Account[:], b)
	case AppMarketInfoQuery:
		v, err := dec.Uint32()
		if err != nil {
			return a, err
		}
		a.Market = market.MarketID(v)
	case AppDrip:
		b, err := dec.Fixed(32)
		if err != nil {
			return a, err
		}
		copy(a.Account[:], b)
		v, err := dec.Uint32()
		if err != nil {
			return a, err
		}
		a.AssetID = ledger.AssetID(v)
	case AppAccountResponse:
		info, err := decodeAccountInfo(dec)
		if err != nil {
			return a, err
		}
		a.AccountInfo = info
	case AppAssetResponse:
		n, err := dec.Uint32()
		if err != nil {
			return a, err
		}
		a.Assets = make([]market.Asset, 0, n)
		for i := uint32(0); i < n; i++ {
			id, err := dec.Uint32()
			if err != nil {
				return a, err
			}
			sym, err := dec.Bytes()
			if err != nil {
				return a, err
			}
			dec8, err := dec.Byte()
			if err != nil {
				return a, err
			}
			a.Assets = append(a.Assets, market.Asset{ID: ledger.AssetID(id), Symbol: string(sym), Decimals: dec8})
		}
	case AppMarketsResponse:
		n, err := dec.Uint32()
		if err != nil {
			return a, err
		}
		a.Markets = make([]market.MarketID, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := dec.Uint32()
			if err != nil {
				return a, err
			}
			a.Markets = append(a.Markets, market.MarketID(v))
		}
	case AppMarketInfoResponse:
		m, err := decodeSpotMarket(dec)
		if err != nil {
			return a, err
		}
		a.MarketInfo = m
	case AppError:
		b, err := dec.Bytes()
		if err != nil {
			return a, err
		}
		a.ErrMsg = string(b)
	default:
		return a, fmt.Errorf("wire: unknown app message kind %d", kindByte)
	}
	return a, nil
}

func encodeAccountInfo(enc *crypto.Encoder, info *ledger.AccountInfo) {
	if info == nil {
		enc.Uint32(0)
		enc.Uint64(0)
		return
	}
	ids := make([]int, 0, len(info.Balances))
	for id := range info.Balances {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	enc.Uint32(uint32(len(ids)))
	for _, id := range ids {
		bal := info.Balances[ledger.AssetID(id)]
		enc.Uint32(uint32(id))
		enc.Uint64(bal.Available)
		enc.Uint64(bal.Total)
	}
	enc.Uint64(info.ExpectedNonce)
}

func decodeAccountInfo(dec *crypto.Decoder) (*ledger.AccountInfo, error) {
	n, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	info := &ledger.AccountInfo{Balances: make(map[ledger.AssetID]*ledger.Balance, n)}
	for i := uint32(0); i < n; i++ {
		id, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		avail, err := dec.Uint64()
		if err != nil {
			return nil, err
		}
		total, err := dec.Uint64()
		if err != nil {
			return nil, err
		}
		info.Balances[ledger.AssetID(id)] = &ledger.Balance{Available: avail, Total: total}
	}
	nonce, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	info.ExpectedNonce = nonce
	return info, nil
}

func encodeSpotMarket(enc *crypto.Encoder, m *market.SpotMarket) {
	if m == nil {
		enc.Byte(0)
		return
	}
	enc.Byte(1)
	enc.Uint32(uint32(m.ID))
	enc.Uint32(uint32(m.BaseAsset))
	enc.Uint32(uint32(m.QuoteAsset))
	enc.Byte(m.TickDecimals)
	encodeLevels(enc, m.BidsLevels)
	encodeLevels(enc, m.AsksLevels)
}

func decodeSpotMarket(dec *crypto.Decoder) (*market.SpotMarket, error) {
	present, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	id, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	base, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	quote, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	tick, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	bids, err := decodeLevels(dec)
	if err != nil {
		return nil, err
	}
	asks, err := decodeLevels(dec)
	if err != nil {
		return nil, err
	}
	return &market.SpotMarket{
		ID: market.MarketID(id), BaseAsset: ledger.AssetID(base), QuoteAsset: ledger.AssetID(quote),
		TickDecimals: tick, BidsLevels: bids, AsksLevels: asks,
	}, nil
}

func encodeLevels(enc *crypto.Encoder, levels []*market.Level) {
	enc.Uint32(uint32(len(levels)))
	for _, lv := range levels {
		enc.Uint64(lv.Price)
		enc.Uint32(lv.Volume)
		enc.Uint32(lv.Cancelled)
		enc.Uint32(uint32(len(lv.Orders)))
		for _, o := range lv.Orders {
			encodeOrder(enc, o)
		}
	}
}

func decodeLevels(dec *crypto.Decoder) ([]*market.Level, error) {
	n, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	levels := make([]*market.Level, 0, n)
	for i := uint32(0); i < n; i++ {
		price, err := dec.Uint64()
		if err != nil {
			return nil, err
		}
		volume, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		cancelled, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		numOrders, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		orders := make([]market.Order, 0, numOrders)
		for j := uint32(0); j < numOrders; j++ {
			o, err := decodeOrder(dec)
			if err != nil {
				return nil, err
			}
			orders = append(orders, o)
		}
		levels = append(levels, &market.Level{Price: price, Volume: volume, Cancelled: cancelled, Orders: orders})
	}
	return levels, nil
}

func encodeOrder(enc *crypto.Encoder, o market.Order) {
	enc.Uint64(uint64(o.ID))
	enc.Fixed(o.Account[:])
	enc.Byte(byte(o.Direction))
	enc.Uint64(o.Price)
	enc.Uint32(o.BaseLots)
	enc.Uint32(o.FilledBaseLots)
	enc.Byte(byte(o.Status))
}

func decodeOrder(dec *crypto.Decoder) (market.Order, error) {
	id, err := dec.Uint64()
	if err != nil {
		return market.Order{}, err
	}
	acctBytes, err := dec.Fixed(32)
	if err != nil {
		return market.Order{}, err
	}
	var acct market.Account
	copy(acct[:], acctBytes)
	dir, err := dec.Byte()
	if err != nil {
		return market.Order{}, err
	}
	price, err := dec.Uint64()
	if err != nil {
		return market.Order{}, err
	}
	baseLots, err := dec.Uint32()
	if err != nil {
		return market.Order{}, err
	}
	filled, err := dec.Uint32()
	if err != nil {
		return market.Order{}, err
	}
	status, err := dec.Byte()
	if err != nil {
		return market.Order{}, err
	}
	return market.Order{
		ID: market.OrderID(id), Account: acct, Direction: market.Direction(dir),
		Price: price, BaseLots: baseLots, FilledBaseLots: filled, Status: market.Status(status),
	}, nil
}

func encodeSignedTransaction(enc *crypto.Encoder, tx *ledger.SignedTransaction) {
	if tx == nil {
		enc.Byte(0)
		return
	}
	enc.Byte(1)
	enc.Fixed(tx.Transfer.From[:])
	enc.Fixed(tx.Transfer.To[:])
	enc.Uint32(uint32(tx.Transfer.AssetID))
	enc.Uint64(tx.Transfer.Amount)
	enc.Uint64(tx.Transfer.Nonce)
	enc.Bytes(tx.Signature)
}

func decodeSignedTransaction(dec *crypto.Decoder) (*ledger.SignedTransaction, error) {
	present, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	from, err := dec.Fixed(32)
	if err != nil {
		return nil, err
	}
	to, err := dec.Fixed(32)
	if err != nil {
		return nil, err
	}
	asset, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	amount, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	nonce, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	sig, err := dec.Bytes()
	if err != nil {
		return nil, err
	}
	tx := &ledger.SignedTransaction{Signature: sig}
	copy(tx.Transfer.From[:], from)
	copy(tx.Transfer.To[:], to)
	tx.Transfer.AssetID = ledger.AssetID(asset)
	tx.Transfer.Amount = amount
	tx.Transfer.Nonce = nonce
	return tx, nil
}

func encodeSignedOrderCommand(enc *crypto.Encoder, oc *market.SignedOrderCommand) {
	if oc == nil {
		enc.Byte(0)
		return
	}
	enc.Byte(1)
	c := oc.Command
	enc.Byte(byte(c.Kind))
	enc.Fixed(c.Account[:])
	enc.Uint32(uint32(c.MarketID))
	enc.Uint64(c.Nonce)
	enc.Byte(byte(c.Direction))
	enc.Uint64(c.Price)
	enc.Uint32(c.BaseLots)
	enc.Uint64(uint64(c.TargetOrderID))
	enc.Byte(byte(c.MarketKind))
	enc.Uint64(c.Size)
	enc.Bytes(oc.Signature)
}

func decodeSignedOrderCommand(dec *crypto.Decoder) (*market.SignedOrderCommand, error) {
	present, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	kind, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	acctBytes, err := dec.Fixed(32)
	if err != nil {
		return nil, err
	}
	marketID, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	nonce, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	direction, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	price, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	baseLots, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	targetOrderID, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	marketKind, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	size, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	sig, err := dec.Bytes()
	if err != nil {
		return nil, err
	}
	oc := &market.SignedOrderCommand{Signature: sig}
	oc.Command.Kind = market.OrderCommandKind(kind)
	copy(oc.Command.Account[:], acctBytes)
	oc.Command.MarketID = market.MarketID(marketID)
	oc.Command.Nonce = nonce
	oc.Command.Direction = market.Direction(direction)
	oc.Command.Price = price
	oc.Command.BaseLots = baseLots
	oc.Command.TargetOrderID = market.OrderID(targetOrderID)
	oc.Command.MarketKind = market.MarketOrderKind(marketKind)
	oc.Command.Size = size
	return oc, nil
}

func encodeQC(enc *crypto.Encoder, qc *consensus.QuorumCertificate) {
	if qc == nil {
		enc.Byte(0)
		return
	}
	enc.Byte(1)
	enc.Uint64(uint64(qc.View))
	enc.Fixed(qc.BlockHash[:])
	enc.Uint32(uint32(len(qc.Sigs)))
	for _, s := range qc.Sigs {
		enc.Uint32(uint32(s.Signer))
		enc.Bytes(s.Signature)
	}
}

func decodeQC(dec *crypto.Decoder) (*consensus.QuorumCertificate, error) {
	present, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	view, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	blockHashBytes, err := dec.Fixed(32)
	if err != nil {
		return nil, err
	}
	var blockHash consensus.Hash
	copy(blockHash[:], blockHashBytes)
	n, err := dec.Uint32()
	if err != nil {
		return nil, err
	}
	sigs := make([]consensus.PartialSig, 0, n)
	for i := uint32(0); i < n; i++ {
		signer, err := dec.Uint32()
		if err != nil {
			return nil, err
		}
		sig, err := dec.Bytes()
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, consensus.PartialSig{Signer: consensus.NodeID(signer), Signature: sig})
	}
	return &consensus.QuorumCertificate{View: consensus.ViewNumber(view), BlockHash: blockHash, Sigs: sigs}, nil
}

func encodeClientCommand(enc *crypto.Encoder, cmd consensus.ClientCommand) {
	enc.Uint32(uint32(len(cmd.Transactions)))
	for _, tx := range cmd.Transactions {
		encodeSignedTransaction(enc, tx)
	}
	enc.Uint32(uint32(len(cmd.OrderCommands)))
	for _, oc := range cmd.OrderCommands {
		encodeSignedOrderCommand(enc, oc)
	}
}

func decodeClientCommand(dec *crypto.Decoder) (consensus.ClientCommand, error) {
	var cmd consensus.ClientCommand
	n, err := dec.Uint32()
	if err != nil {
		return cmd, err
	}
	for i := uint32(0); i < n; i++ {
		tx, err := decodeSignedTransaction(dec)
		if err != nil {
			return cmd, err
		}
		cmd.Transactions = append(cmd.Transactions, tx)
	}
	m, err := dec.Uint32()
	if err != nil {
		return cmd, err
	}
	for i := uint32(0); i < m; i++ {
		oc, err := decodeSignedOrderCommand(dec)
		if err != nil {
			return cmd, err
		}
		cmd.OrderCommands = append(cmd.OrderCommands, oc)
	}
	return cmd, nil
}

func encodeBlock(enc *crypto.Encoder, b *consensus.Block) {
	if b == nil {
		enc.Byte(0)
		return
	}
	enc.Byte(1)
	enc.Uint64(uint64(b.View))
	enc.Fixed(b.ParentHash[:])
	encodeClientCommand(enc, b.Cmd)
	encodeQC(enc, b.Justify)
}

func decodeBlock(dec *crypto.Decoder) (*consensus.Block, error) {
	present, err := dec.Byte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	view, err := dec.Uint64()
	if err != nil {
		return nil, err
	}
	parentHashBytes, err := dec.Fixed(32)
	if err != nil {
		return nil, err
	}
	var parentHash consensus.Hash
	copy(parentHash[:], parentHashBytes)
	cmd, err := decodeClientCommand(dec)
	if err != nil {
		return nil, err
	}
	justify, err := decodeQC(dec)
	if err != nil {
		return nil, err
	}
	return consensus.NewBlock(consensus.ViewNumber(view), parentHash, cmd, justify), nil
}

func encodeHotStuff(enc *crypto.Encoder, m consensus.HotStuffMessage) {
	enc.Byte(byte(m.Kind))
	enc.Uint64(uint64(m.View))
	enc.Uint32(uint32(m.Sender))
	switch m.Kind {
	case consensus.MsgProposal:
		encodeBlock(enc, m.Block)
	case consensus.MsgVote:
		enc.Fixed(m.VoteBlockHash[:])
		enc.Bytes(m.VoteSig)
	case consensus.MsgNewView:
		encodeQC(enc, m.HighQC)
	}
}

func decodeHotStuff(dec *crypto.Decoder) (consensus.HotStuffMessage, error) {
	kindByte, err := dec.Byte()
	if err != nil {
		return consensus.HotStuffMessage{}, err
	}
	view, err := dec.Uint64()
	if err != nil {
		return consensus.HotStuffMessage{}, err
	}
	sender, err := dec.Uint32()
	if err != nil {
		return consensus.HotStuffMessage{}, err
	}
	m := consensus.HotStuffMessage{Kind: consensus.MessageKind(kindByte), View: consensus.ViewNumber(view), Sender: consensus.NodeID(sender)}
	switch m.Kind {
	case consensus.MsgProposal:
		b, err := decodeBlock(dec)
		if err != nil {
			return m, err
		}
		m.Block = b
	case consensus.MsgVote:
		hashBytes, err := dec.Fixed(32)
		if err != nil {
			return m, err
		}
		copy(m.VoteBlockHash[:], hashBytes)
		sig, err := dec.Bytes()
		if err != nil {
			return m, err
		}
		m.VoteSig = sig
	case consensus.MsgNewView:
		qc, err := decodeQC(dec)
		if err != nil {
			return m, err
		}
		m.HighQC = qc
	default:
		return m, fmt.Errorf("wire: unknown hotstuff message kind %d", kindByte)
	}
	return m, nil
}
