package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

const (
	marketplace = "0x1000000000000000000000000000000000000001"
	seaport     = "0x0000000000000068F116a894984e2DB1123eB395"
	usdc        = "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 500 || cfg.MaxRange != 10000 {
		t.Fatalf("unexpected range defaults: %+v", cfg)
	}
	if cfg.TimeBudget != 50*time.Second || cfg.ListingTTL != 720*time.Hour {
		t.Fatalf("unexpected duration defaults: %v %v", cfg.TimeBudget, cfg.ListingTTL)
	}
	if cfg.PaymentDecimals != 6 || cfg.CursorName != "marketplace" || cfg.Listen != ":8080" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MarketplaceAddresses != nil {
		t.Fatalf("expected no addresses, got %v", cfg.MarketplaceAddresses)
	}
}

func TestLoadEnvAndFlagPrecedence(t *testing.T) {
	t.Setenv("MARKETSYNC_CHUNK_SIZE", "25")
	t.Setenv("MARKETSYNC_MARKETPLACE_ADDRESS", marketplace+", 0x2000000000000000000000000000000000000002")
	t.Setenv("MARKETSYNC_TIME_BUDGET", "15s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Uint64("chunk-size", 500, "")
	flags.Duration("time-budget", 50*time.Second, "")
	if err := flags.Parse([]string{"--chunk-size=7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load("", flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ChunkSize != 7 {
		t.Fatalf("flag should win over env, got %d", cfg.ChunkSize)
	}
	if cfg.TimeBudget != 15*time.Second {
		t.Fatalf("env should win over flag default, got %v", cfg.TimeBudget)
	}
	want := []string{marketplace, "0x2000000000000000000000000000000000000002"}
	if !reflect.DeepEqual(cfg.MarketplaceAddresses, want) {
		t.Fatalf("addresses mismatch: %v", cfg.MarketplaceAddresses)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "marketsync.yaml")
	body := "rpc: https://rpc.example\n" +
		"seaport-address:\n  - " + seaport + "\n" +
		"payment-token: " + usdc + "\n" +
		"deployment-block: 1200\n" +
		"confirmations: 3\n" +
		"retry-backoff: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RPCURL != "https://rpc.example" || cfg.DeploymentBlock != 1200 || cfg.Confirmations != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.SeaportAddresses, []string{seaport}) {
		t.Fatalf("seaport addresses mismatch: %v", cfg.SeaportAddresses)
	}
	if cfg.RetryBackoff != 2*time.Second {
		t.Fatalf("retry backoff mismatch: %v", cfg.RetryBackoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		MarketplaceAddresses: []string{marketplace},
		PaymentDecimals:      6,
		ChunkSize:            500,
		CursorName:           "marketplace",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"no contracts":      func(c *Config) { c.MarketplaceAddresses = nil },
		"bad address":       func(c *Config) { c.MarketplaceAddresses = []string{"0x123"} },
		"seaport no token":  func(c *Config) { c.SeaportAddresses = []string{seaport} },
		"decimals":          func(c *Config) { c.PaymentDecimals = 40 },
		"zero chunk":        func(c *Config) { c.ChunkSize = 0 },
		"empty cursor name": func(c *Config) { c.CursorName = "" },
	}
	for name, mutate := range cases {
		cfg := base
		cfg.MarketplaceAddresses = append([]string(nil), base.MarketplaceAddresses...)
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
