// Command client starts a minimal console for talking to a running node:
// it dials the node's peer/client listener, completes the Hello handshake,
// then reads one subcommand per line from stdin and prints the response.
package main

import (
	"bufio"
	"crypto/tls"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/ledger"
	"github.com/tolelom/tolchain/market"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/wallet"
	"github.com/tolelom/tolchain/wire"
)

func main() {
	addr := flag.String("addr", "localhost:30303", "node's peer/client address")
	keyPath := flag.String("key", "client.key", "path to keystore file")
	tlsConfigPath := flag.String("tls-config", "", "path to a node config.json to borrow TLS settings from, for dialing over mTLS")
	flag.Parse()

	password := os.Getenv("TOL_PASSWORD")

	w, err := loadOrCreateWallet(*keyPath, password)
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}
	fmt.Printf("Client account: %s\n", w.PubKey())

	var tlsCfg *tls.Config
	if *tlsConfigPath != "" {
		cfg, err := config.Load(*tlsConfigPath)
		if err != nil {
			log.Fatalf("loading tls config: %v", err)
		}
		tlsCfg, err = config.LoadTLSConfig(cfg.TLS)
		if err != nil {
			log.Fatalf("tls: %v", err)
		}
	}

	peer, err := network.Connect(*addr, tlsCfg)
	if err != nil {
		log.Fatalf("connect to %s: %v", *addr, err)
	}
	defer peer.Close()

	hello := wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppHello, PeerID: w.PubKey()})
	if err := peer.Send(hello); err != nil {
		log.Fatalf("hello: %v", err)
	}
	fmt.Printf("Connected to %s\n", *addr)

	c := &console{w: w, peer: peer}
	c.run()

	_ = peer.Send(wire.NewConnectionMessage(wire.ControlMessage{Kind: wire.ControlEnd}))
}

func loadOrCreateWallet(path, password string) (*wallet.Wallet, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		w, err := wallet.Generate()
		if err != nil {
			return nil, err
		}
		if err := wallet.SaveKey(path, password, w.PrivKey()); err != nil {
			return nil, err
		}
		fmt.Printf("Generated new client key at %s\n", path)
		return w, nil
	}
	priv, err := wallet.LoadKey(path, password)
	if err != nil {
		return nil, err
	}
	return wallet.New(priv), nil
}

// console reads commands from stdin and drives a single connected peer.
// It is single-threaded: one command's request/response round trip
// completes before the next line is read.
type console struct {
	w    *wallet.Wallet
	peer *network.Peer
}

func (c *console) run() {
	fmt.Println(`Commands:
  account [pubkey_hex]             query an account (default: self)
  assets                           list known assets
  markets                          list known markets
  market <id>                      show one market's order book summary
  drip <asset_id>                  request a faucet credit to self
  transfer <to_hex> <asset> <amt>  sign and submit a transfer
  limit <market> buy|sell <price> <lots>    place a limit order
  cancel <market> <order_id> buy|sell <price> <lots>
  mbuy <market> <quote_lots>       market buy, spending quote_lots
  msell <market> <base_lots>       market sell, selling base_lots
  help
  exit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]

		if cmd == "exit" || cmd == "quit" {
			return
		}
		if err := c.dispatch(cmd, args); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func (c *console) dispatch(cmd string, args []string) error {
	switch cmd {
	case "help":
		c.run2Help()
	case "account":
		return c.cmdAccount(args)
	case "assets":
		return c.cmdAssets()
	case "markets":
		return c.cmdMarkets()
	case "market":
		return c.cmdMarket(args)
	case "drip":
		return c.cmdDrip(args)
	case "transfer":
		return c.cmdTransfer(args)
	case "limit":
		return c.cmdLimit(args)
	case "cancel":
		return c.cmdCancel(args)
	case "mbuy":
		return c.cmdMarketOrder(args, market.BuyInQuote)
	case "msell":
		return c.cmdMarketOrder(args, market.SellInBase)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

func (c *console) run2Help() {
	fmt.Println(`account [pubkey_hex], assets, markets, market <id>, drip <asset_id>,
transfer <to_hex> <asset> <amt>, limit <market> buy|sell <price> <lots>,
cancel <market> <order_id> buy|sell <price> <lots>, mbuy <market> <quote_lots>,
msell <market> <base_lots>, exit`)
}

// send writes req and blocks for the single response frame that follows.
func (c *console) send(req wire.AppMessage) (wire.AppMessage, error) {
	if err := c.peer.Send(wire.NewApplicationMessage(req)); err != nil {
		return wire.AppMessage{}, err
	}
	resp, err := c.peer.Receive()
	if err != nil {
		return wire.AppMessage{}, err
	}
	if resp.Tag != wire.TagApplication {
		return wire.AppMessage{}, fmt.Errorf("unexpected response tag %d", resp.Tag)
	}
	if resp.App.Kind == wire.AppError {
		return wire.AppMessage{}, fmt.Errorf("node: %s", resp.App.ErrMsg)
	}
	return resp.App, nil
}

func (c *console) accountInfo(acct ledger.Account) (*ledger.AccountInfo, error) {
	resp, err := c.send(wire.AppMessage{Kind: wire.AppAccountQuery, Account: acct})
	if err != nil {
		return nil, err
	}
	return resp.AccountInfo, nil
}

func (c *console) cmdAccount(args []string) error {
	acct := c.w.Account()
	if len(args) > 0 {
		pub, err := crypto.PubKeyFromHex(args[0])
		if err != nil {
			return err
		}
		var ok bool
		acct, ok = ledger.AccountFromPublicKey(pub)
		if !ok {
			return fmt.Errorf("invalid public key")
		}
	}
	info, err := c.accountInfo(acct)
	if err != nil {
		return err
	}
	fmt.Printf("account %s  expected_nonce=%d\n", acct, info.ExpectedNonce)
	for id, bal := range info.Balances {
		fmt.Printf("  asset %d: available=%d total=%d\n", id, bal.Available, bal.Total)
	}
	return nil
}

func (c *console) cmdAssets() error {
	resp, err := c.send(wire.AppMessage{Kind: wire.AppAssetQuery})
	if err != nil {
		return err
	}
	for _, a := range resp.Assets {
		fmt.Printf("  %d: %s (%d decimals)\n", a.ID, a.Symbol, a.Decimals)
	}
	return nil
}

func (c *console) cmdMarkets() error {
	resp, err := c.send(wire.AppMessage{Kind: wire.AppMarketsQuery})
	if err != nil {
		return err
	}
	for _, id := range resp.Markets {
		fmt.Printf("  market %d\n", id)
	}
	return nil
}

func (c *console) cmdMarket(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: market <id>")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("market id: %w", err)
	}
	resp, err := c.send(wire.AppMessage{Kind: wire.AppMarketInfoQuery, Market: market.MarketID(id)})
	if err != nil {
		return err
	}
	m := resp.MarketInfo
	bid, hasBid, ask, hasAsk := m.GetBestPrices()
	fmt.Printf("market %d: base=%d quote=%d tick_decimals=%d\n", m.ID, m.BaseAsset, m.QuoteAsset, m.TickDecimals)
	if hasBid {
		fmt.Printf("  best bid: %d\n", bid)
	}
	if hasAsk {
		fmt.Printf("  best ask: %d\n", ask)
	}
	return nil
}

func (c *console) cmdDrip(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: drip <asset_id>")
	}
	assetID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	_, err = c.send(wire.AppMessage{Kind: wire.AppDrip, Account: c.w.Account(), AssetID: ledger.AssetID(assetID)})
	if err != nil {
		return err
	}
	fmt.Println("drip admitted")
	return nil
}

func (c *console) cmdTransfer(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: transfer <to_hex> <asset_id> <amount>")
	}
	pub, err := crypto.PubKeyFromHex(args[0])
	if err != nil {
		return err
	}
	to, ok := ledger.AccountFromPublicKey(pub)
	if !ok {
		return fmt.Errorf("invalid recipient public key")
	}
	assetID, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		return fmt.Errorf("asset id: %w", err)
	}
	amount, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}

	info, err := c.accountInfo(c.w.Account())
	if err != nil {
		return err
	}
	tx := c.w.Transfer(to, ledger.AssetID(assetID), amount, info.ExpectedNonce)
	if err := c.peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppSubmitTransaction, Tx: tx})); err != nil {
		return err
	}
	fmt.Printf("submitted transfer at nonce %d (no on-wire ack; poll 'account' to confirm commit)\n", info.ExpectedNonce)
	return nil
}

func (c *console) cmdLimit(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("usage: limit <market> buy|sell <price> <lots>")
	}
	mkt, err := parseMarketID(args[0])
	if err != nil {
		return err
	}
	dir, err := parseDirection(args[1])
	if err != nil {
		return err
	}
	price, err := strconv.ParseUint(args[2], 10, 64)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	lots, err := strconv.ParseUint(args[3], 10, 32)
	if err != nil {
		return fmt.Errorf("lots: %w", err)
	}

	info, err := c.accountInfo(c.w.Account())
	if err != nil {
		return err
	}
	oc := c.w.PlaceLimitOrder(mkt, dir, price, uint32(lots), info.ExpectedNonce)
	if err := c.peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppSubmitOrderCommand, Order: oc})); err != nil {
		return err
	}
	fmt.Printf("submitted limit order at nonce %d\n", info.ExpectedNonce)
	return nil
}

func (c *console) cmdCancel(args []string) error {
	if len(args) != 5 {
		return fmt.Errorf("usage: cancel <market> <order_id> buy|sell <price> <lots>")
	}
	mkt, err := parseMarketID(args[0])
	if err != nil {
		return err
	}
	orderID, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}
	dir, err := parseDirection(args[2])
	if err != nil {
		return err
	}
	price, err := strconv.ParseUint(args[3], 10, 64)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	lots, err := strconv.ParseUint(args[4], 10, 32)
	if err != nil {
		return fmt.Errorf("lots: %w", err)
	}

	info, err := c.accountInfo(c.w.Account())
	if err != nil {
		return err
	}
	oc := c.w.CancelOrder(mkt, market.OrderID(orderID), dir, price, uint32(lots), info.ExpectedNonce)
	if err := c.peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppSubmitOrderCommand, Order: oc})); err != nil {
		return err
	}
	fmt.Printf("submitted cancel at nonce %d\n", info.ExpectedNonce)
	return nil
}

func (c *console) cmdMarketOrder(args []string, kind market.MarketOrderKind) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: <market> <size>")
	}
	mkt, err := parseMarketID(args[0])
	if err != nil {
		return err
	}
	size, err := strconv.ParseUint(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("size: %w", err)
	}

	info, err := c.accountInfo(c.w.Account())
	if err != nil {
		return err
	}
	oc := c.w.MarketOrder(mkt, kind, size, info.ExpectedNonce)
	if err := c.peer.Send(wire.NewApplicationMessage(wire.AppMessage{Kind: wire.AppSubmitOrderCommand, Order: oc})); err != nil {
		return err
	}
	fmt.Printf("submitted market order at nonce %d\n", info.ExpectedNonce)
	return nil
}

func parseMarketID(s string) (market.MarketID, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("market id: %w", err)
	}
	return market.MarketID(id), nil
}

func parseDirection(s string) (market.Direction, error) {
	switch strings.ToLower(s) {
	case "buy":
		return market.Buy, nil
	case "sell":
		return market.Sell, nil
	default:
		return 0, fmt.Errorf("direction must be buy or sell, got %q", s)
	}
}
