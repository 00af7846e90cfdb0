// Package config loads and validates the engine's runtime
// configuration, following the teacher's config.go pattern: a TOML
// file is decoded via BurntSushi/toml, a missing file gets a
// generated default (including a freshly minted validator key written
// back to disk), and every tunable the spec names is collected into a
// single typed struct validated fail-fast before the engine starts.
package config

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"nhbchain/crypto"
)

// EngineConfig carries every tunable named in spec.md: mailbox sizes,
// deque_size, max_uploads_outstanding, max_pending_seed_listeners,
// timeouts, storage partition/freezer parameters, and
// partition_prefix.
type EngineConfig struct {
	ListenAddress  string   `toml:"ListenAddress"`
	ChainID        uint64   `toml:"ChainID"`
	BootstrapPeers []string `toml:"BootstrapPeers"`
	DataDir        string   `toml:"DataDir"`
	ValidatorKey   string   `toml:"ValidatorKey"`

	// ValidatorKeystorePath, when set, takes priority over ValidatorKey:
	// the validator key is decrypted from this go-ethereum v3 keystore
	// file instead of read as a plaintext hex string.
	ValidatorKeystorePath string `toml:"ValidatorKeystorePath"`

	PartitionPrefix string `toml:"PartitionPrefix"`

	MailboxSize             int `toml:"MailboxSize"`
	DequeSize               int `toml:"DequeSize"`
	MaxUploadsOutstanding   int `toml:"MaxUploadsOutstanding"`
	MaxPendingSeedListeners int `toml:"MaxPendingSeedListeners"`
	MaxRepair               int `toml:"MaxRepair"`

	ProposeTimeoutMillis   int64 `toml:"ProposeTimeoutMillis"`
	PrevoteTimeoutMillis   int64 `toml:"PrevoteTimeoutMillis"`
	PrecommitTimeoutMillis int64 `toml:"PrecommitTimeoutMillis"`
	ActivityTimeoutViews   uint64 `toml:"ActivityTimeoutViews"`

	AggregationWindow     int   `toml:"AggregationWindow"`
	RebroadcastTimeoutSecs int64 `toml:"RebroadcastTimeoutSecs"`

	FreezerTableResizeFrequency int `toml:"FreezerTableResizeFrequency"`
	FreezerTableResizeChunkSize int `toml:"FreezerTableResizeChunkSize"`
	MMRItemsPerBlob             int `toml:"MMRItemsPerBlob"`
	LogItemsPerSection          int `toml:"LogItemsPerSection"`
	LocationsItemsPerBlob       int `toml:"LocationsItemsPerBlob"`
	CertificatesItemsPerBlob    int `toml:"CertificatesItemsPerBlob"`
	CacheItemsPerBlob           int `toml:"CacheItemsPerBlob"`

	ThreeCardJackpotBase uint64 `toml:"ThreeCardJackpotBase"`
	UthJackpotBase       uint64 `toml:"UthJackpotBase"`
}

// ProposeTimeout, PrevoteTimeout, PrecommitTimeout, and
// RebroadcastTimeout convert the millisecond/second config fields
// into time.Duration values.
func (c *EngineConfig) ProposeTimeout() time.Duration {
	return time.Duration(c.ProposeTimeoutMillis) * time.Millisecond
}

func (c *EngineConfig) PrevoteTimeout() time.Duration {
	return time.Duration(c.PrevoteTimeoutMillis) * time.Millisecond
}

func (c *EngineConfig) PrecommitTimeout() time.Duration {
	return time.Duration(c.PrecommitTimeoutMillis) * time.Millisecond
}

func (c *EngineConfig) RebroadcastTimeout() time.Duration {
	return time.Duration(c.RebroadcastTimeoutSecs) * time.Second
}

// ViewRetentionTimeout is activity_timeout * SYNCER_ACTIVITY_TIMEOUT_MULTIPLIER
// (10), unchanged constant from spec.md §6.4.
func (c *EngineConfig) ViewRetentionTimeout() uint64 {
	return c.ActivityTimeoutViews * 10
}

// Load loads EngineConfig from path, creating a default configuration
// file (with a freshly generated validator key) if path does not
// exist yet.
func Load(path string) (*EngineConfig, error) {
	cfg := &EngineConfig{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if cfg.ValidatorKey == "" {
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		cfg.ValidatorKey = hex.EncodeToString(key.Bytes())
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, os.ModePerm)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func createDefault(path string) (*EngineConfig, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &EngineConfig{
		ListenAddress:           ":6001",
		ChainID:                 1,
		DataDir:                 "./engine-data",
		ValidatorKey:            hex.EncodeToString(key.Bytes()),
		PartitionPrefix:         "engine",
		MailboxSize:             256,
		DequeSize:               128,
		MaxUploadsOutstanding:   32,
		MaxPendingSeedListeners: 64,
		MaxRepair:               256,
		ProposeTimeoutMillis:    2000,
		PrevoteTimeoutMillis:    2000,
		PrecommitTimeoutMillis:  2000,
		ActivityTimeoutViews:    100,
		AggregationWindow:       16,
		RebroadcastTimeoutSecs:  10,

		FreezerTableResizeFrequency: 1000,
		FreezerTableResizeChunkSize: 10000,
		MMRItemsPerBlob:             1024,
		LogItemsPerSection:          1024,
		LocationsItemsPerBlob:       1024,
		CertificatesItemsPerBlob:    1024,
		CacheItemsPerBlob:           1024,

		ThreeCardJackpotBase: 1_000_000,
		UthJackpotBase:       2_000_000,
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
