// Command node starts a replica: HotStuff consensus, the ledger and spot
// order book execution engine, its peer/client wire listener, and a
// read-only RPC introspection endpoint.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/tolelom/tolchain/config"
	"github.com/tolelom/tolchain/consensus"
	"github.com/tolelom/tolchain/crypto"
	"github.com/tolelom/tolchain/crypto/certgen"
	"github.com/tolelom/tolchain/network"
	"github.com/tolelom/tolchain/rpc"
	"github.com/tolelom/tolchain/storage"
	"github.com/tolelom/tolchain/wallet"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit")
	flag.Parse()

	password := os.Getenv("TOL_PASSWORD")
	if password == "" {
		log.Println("WARNING: TOL_PASSWORD not set — keystore will use an empty password")
	}

	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Public key (validator address): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *genCerts != "" {
		if err := certgen.GenerateAll(*genCerts, fmt.Sprintf("node-%d", cfg.NodeIndex), nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %d\n", *genCerts, cfg.NodeIndex)
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}

	privKey, err := crypto.PrivKeyFromHex(cfg.Validators[cfg.NodeIndex].SecretKeyHex)
	if err != nil {
		log.Fatalf("node's own secret key: %v", err)
	}

	pubs := make([]crypto.PublicKey, cfg.NumValidators)
	for i, v := range cfg.Validators {
		pub, err := crypto.PubKeyFromHex(v.PublicKeyHex)
		if err != nil {
			log.Fatalf("validators[%d].public_key: %v", i, err)
		}
		pubs[i] = pub
	}
	validators := consensus.NewValidatorSet(pubs)
	if err := validators.Validate(); err != nil {
		log.Fatalf("validator set: %v", err)
	}

	ledgerState, clearingHouse, err := config.BuildGenesisState(cfg)
	if err != nil {
		log.Fatalf("genesis: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/audit")
	if err != nil {
		log.Fatalf("open audit db: %v", err)
	}
	defer db.Close()
	auditLog := storage.NewAuditLog(db)

	replica := consensus.NewReplica(
		consensus.NodeID(cfg.NodeIndex), validators, privKey,
		ledgerState, clearingHouse, cfg.TickDuration(), cfg.MultiplicativeFactor,
	)
	replica.OnCommit = func(b *consensus.Block) {
		rec := storage.CommitRecord{
			View:         b.View,
			BlockHash:    b.Hash(),
			NumTxs:       len(b.Cmd.Transactions),
			NumOrderCmds: len(b.Cmd.OrderCommands),
		}
		if err := auditLog.Append(rec); err != nil {
			log.Printf("audit log append (view %d): %v", rec.View, err)
		}
	}

	inbox := make(chan consensus.Event, 1024)

	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for the peer/client listener")
	}

	selfPeerID := cfg.Validators[cfg.NodeIndex].PublicKeyHex
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(consensus.NodeID(cfg.NodeIndex), selfPeerID, p2pAddr, inbox, tlsCfg)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("Peer/client listener on %s", p2pAddr)

	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.Addr); err != nil {
			log.Printf("seed peer %s: %v", sp.Addr, err)
			continue
		}
		log.Printf("Connected to seed peer %s", sp.Addr)
	}

	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(inbox)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		replica.Run(inbox)
	}()
	log.Printf("Replica running (node_index=%d, validator=%s)", cfg.NodeIndex, privKey.Public().Hex())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	close(inbox)
	<-done
	log.Println("Shutdown complete.")
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
