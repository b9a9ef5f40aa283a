package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tolelom/tolchain/crypto"
)

// TLSConfig holds paths to the PEM files needed for mTLS.
// When nil or all paths empty, the node falls back to plain TCP.
type TLSConfig struct {
	CACert   string `json:"ca_cert"`   // CA certificate PEM path
	NodeCert string `json:"node_cert"` // node certificate PEM path
	NodeKey  string `json:"node_key"`  // node private key PEM path
}

// SeedPeer identifies a remote node to connect to on startup.
type SeedPeer struct {
	PeerID string `json:"peer_id"`
	Addr   string `json:"addr"` // host:port
}

// ValidatorKey is one entry of the validator set: the public key every
// replica uses to verify that validator's signatures, and (for this
// process's own index only) the matching secret key.
type ValidatorKey struct {
	PublicKeyHex string `json:"public_key"`
	SecretKeyHex string `json:"secret_key,omitempty"` // only set for this process's own index
}

// FaucetAllocation seeds one account with a starting balance of one asset
// at genesis.
type FaucetAllocation struct {
	PublicKeyHex string `json:"public_key"`
	AssetID      uint32 `json:"asset_id"`
	Amount       uint64 `json:"amount"`
}

// GenesisConfig describes the exchange's initial state: the assets and
// markets the clearinghouse starts with, plus faucet balances.
type GenesisConfig struct {
	Markets []MarketConfig     `json:"markets"`
	Alloc   []FaucetAllocation `json:"alloc"`
}

// MarketConfig describes one spot market seeded at genesis.
type MarketConfig struct {
	ID         uint32 `json:"id"`
	BaseAsset  uint32 `json:"base_asset"`
	QuoteAsset uint32 `json:"quote_asset"`
}

// Config holds all node configuration. NumValidators/Validators/NodeIndex,
// TickDuration and MultiplicativeFactor are the process-wide consensus
// parameters read at startup (spec.md §6); the rest are this node's own
// infrastructure knobs.
type Config struct {
	NodeIndex int            `json:"node_index"`
	DataDir   string         `json:"data_dir"`
	RPCPort   int            `json:"rpc_port"`
	P2PPort   int            `json:"p2p_port"`

	NumValidators         int            `json:"num_validators"`
	Validators            []ValidatorKey `json:"validators"`
	TickDurationMillis    int64          `json:"tick_duration_ms"`
	MultiplicativeFactor  float64        `json:"multiplicative_factor"`

	Genesis      GenesisConfig `json:"genesis"`
	SeedPeers    []SeedPeer    `json:"seed_peers,omitempty"`
	TLS          *TLSConfig    `json:"tls,omitempty"`
	RPCAuthToken string        `json:"rpc_auth_token,omitempty"`
}

// TickDuration returns the configured base pacemaker timeout as a Duration.
func (c *Config) TickDuration() time.Duration {
	return time.Duration(c.TickDurationMillis) * time.Millisecond
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeIndex:            0,
		DataDir:              "./data",
		RPCPort:              8545,
		P2PPort:              30303,
		NumValidators:        1,
		TickDurationMillis:   500,
		MultiplicativeFactor: 2.0,
		Genesis: GenesisConfig{
			Markets: []MarketConfig{{ID: 0, BaseAsset: 0, QuoteAsset: 1}},
		},
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed,
// including the fatal public/secret key match check spec.md §6 requires.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.RPCPort <= 0 || c.RPCPort > 65535 {
		return fmt.Errorf("rpc_port must be 1-65535, got %d", c.RPCPort)
	}
	if c.P2PPort <= 0 || c.P2PPort > 65535 {
		return fmt.Errorf("p2p_port must be 1-65535, got %d", c.P2PPort)
	}
	if c.RPCPort == c.P2PPort {
		return fmt.Errorf("rpc_port and p2p_port must not be the same (%d)", c.RPCPort)
	}
	if c.NumValidators <= 0 {
		return fmt.Errorf("num_validators must be positive")
	}
	if len(c.Validators) != c.NumValidators {
		return fmt.Errorf("validators list has %d entries, want num_validators=%d", len(c.Validators), c.NumValidators)
	}
	if c.NodeIndex < 0 || c.NodeIndex >= c.NumValidators {
		return fmt.Errorf("node_index %d out of range [0,%d)", c.NodeIndex, c.NumValidators)
	}
	if c.TickDurationMillis <= 0 {
		return fmt.Errorf("tick_duration_ms must be positive")
	}
	for i, v := range c.Validators {
		pub, err := crypto.PubKeyFromHex(v.PublicKeyHex)
		if err != nil {
			return fmt.Errorf("validators[%d].public_key: %w", i, err)
		}
		if i == c.NodeIndex {
			if v.SecretKeyHex == "" {
				return fmt.Errorf("validators[%d] is this node's own index but carries no secret_key", i)
			}
			priv, err := crypto.PrivKeyFromHex(v.SecretKeyHex)
			if err != nil {
				return fmt.Errorf("validators[%d].secret_key: %w", i, err)
			}
			if string(priv.Public()) != string(pub) {
				return fmt.Errorf("validators[%d]: secret_key does not match public_key", i)
			}
		}
	}
	if c.TLS != nil {
		t := c.TLS
		allSet := t.CACert != "" && t.NodeCert != "" && t.NodeKey != ""
		allEmpty := t.CACert == "" && t.NodeCert == "" && t.NodeKey == ""
		if !allSet && !allEmpty {
			return fmt.Errorf("tls: all three paths (ca_cert, node_cert, node_key) must be set or all empty")
		}
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
