package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	PGDSN    string
	ChainID  uint64
	LogLevel string

	MarketplaceAddresses []string
	SeaportAddresses     []string
	PaymentToken         string
	PaymentDecimals      int32

	DeploymentBlock uint64
	ChunkSize       uint64
	MaxRange        uint64
	TimeBudget      time.Duration
	Confirmations   uint64
	CursorName      string
	CursorFile      string
	MaxRetries      int
	RetryBackoff    time.Duration
	ListingTTL      time.Duration

	IdentityURL       string
	IdentityAPIKey    string
	IdentityCacheSize int
	IdentityCacheTTL  time.Duration
	IdentityTimeout   time.Duration
	RedisAddr         string
	ProfileWorkers    int

	IPFSGateway       string
	MetadataTimeout   time.Duration
	MetadataCacheSize int

	Failures     string
	Listen       string
	SyncInterval time.Duration
	AdminToken   string

	FromBlock uint64
	ToBlock   uint64
	In        string
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MARKETSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("payment-decimals", 6)
	v.SetDefault("chunk-size", uint64(500))
	v.SetDefault("max-range", uint64(10000))
	v.SetDefault("time-budget", 50*time.Second)
	v.SetDefault("confirmations", uint64(0))
	v.SetDefault("cursor-name", "marketplace")
	v.SetDefault("cursor-file", "./data/cursor.json")
	v.SetDefault("max-retries", 3)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("listing-ttl", 720*time.Hour)
	v.SetDefault("identity-cache-size", 4096)
	v.SetDefault("identity-cache-ttl", time.Hour)
	v.SetDefault("identity-timeout", 5*time.Second)
	v.SetDefault("ipfs-gateway", "https://ipfs.io/ipfs/")
	v.SetDefault("metadata-timeout", 10*time.Second)
	v.SetDefault("metadata-cache-size", 1024)
	v.SetDefault("profile-workers", 2)
	v.SetDefault("listen", ":8080")
	v.SetDefault("sync-interval", time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:   v.GetString("rpc"),
		PGDSN:    v.GetString("pg-dsn"),
		ChainID:  v.GetUint64("chain-id"),
		LogLevel: v.GetString("log-level"),

		MarketplaceAddresses: getStringSlice(v, "marketplace-address"),
		SeaportAddresses:     getStringSlice(v, "seaport-address"),
		PaymentToken:         v.GetString("payment-token"),
		PaymentDecimals:      v.GetInt32("payment-decimals"),

		DeploymentBlock: v.GetUint64("deployment-block"),
		ChunkSize:       v.GetUint64("chunk-size"),
		MaxRange:        v.GetUint64("max-range"),
		TimeBudget:      v.GetDuration("time-budget"),
		Confirmations:   v.GetUint64("confirmations"),
		CursorName:      v.GetString("cursor-name"),
		CursorFile:      v.GetString("cursor-file"),
		MaxRetries:      v.GetInt("max-retries"),
		RetryBackoff:    v.GetDuration("retry-backoff"),
		ListingTTL:      v.GetDuration("listing-ttl"),

		IdentityURL:       v.GetString("identity-url"),
		IdentityAPIKey:    v.GetString("identity-api-key"),
		IdentityCacheSize: v.GetInt("identity-cache-size"),
		IdentityCacheTTL:  v.GetDuration("identity-cache-ttl"),
		IdentityTimeout:   v.GetDuration("identity-timeout"),
		RedisAddr:         v.GetString("redis-addr"),
		ProfileWorkers:    v.GetInt("profile-workers"),

		IPFSGateway:       v.GetString("ipfs-gateway"),
		MetadataTimeout:   v.GetDuration("metadata-timeout"),
		MetadataCacheSize: v.GetInt("metadata-cache-size"),

		Failures:     v.GetString("failures"),
		Listen:       v.GetString("listen"),
		SyncInterval: v.GetDuration("sync-interval"),
		AdminToken:   v.GetString("admin-token"),

		FromBlock: v.GetUint64("from"),
		ToBlock:   v.GetUint64("to"),
		In:        v.GetString("in"),
	}

	return cfg, nil
}

// Validate checks the settings every pipeline command depends on.
func (c Config) Validate() error {
	if len(c.MarketplaceAddresses) == 0 && len(c.SeaportAddresses) == 0 {
		return fmt.Errorf("at least one of marketplace-address or seaport-address is required")
	}
	for _, addr := range append(append([]string{}, c.MarketplaceAddresses...), c.SeaportAddresses...) {
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid contract address %q", addr)
		}
	}
	if len(c.SeaportAddresses) > 0 && !common.IsHexAddress(c.PaymentToken) {
		return fmt.Errorf("payment-token is required when seaport-address is set")
	}
	if c.PaymentDecimals < 0 || c.PaymentDecimals > 36 {
		return fmt.Errorf("payment-decimals must be between 0 and 36")
	}
	if c.ChunkSize == 0 {
		return fmt.Errorf("chunk-size must be greater than zero")
	}
	if c.CursorName == "" {
		return fmt.Errorf("cursor-name is required")
	}
	return nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
