package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the YAML configuration.
type Config struct {
	Version  int           `yaml:"version"`
	LogLevel string        `yaml:"log_level"`
	Node     NodeConfig    `yaml:"node"`
	Token    TokenConfig   `yaml:"token"`
	Watch    WatchConfig   `yaml:"watch"`
	Pools    PoolsConfig   `yaml:"pools"`
	Report   ReportConfig  `yaml:"report"`
	Sinks    []Sink        `yaml:"sinks"`
	Storage  StorageConfig `yaml:"storage"`
}

type NodeConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	ExplorerURL string `yaml:"explorer_url"`
}

// TokenConfig names the ERC-20 contract being watched. Name, symbol and
// decimals are normally read from the contract; non-empty values here
// override the on-chain answers.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Name     string `yaml:"name"`
	Symbol   string `yaml:"symbol"`
	Decimals *int   `yaml:"decimals"`
}

type WatchConfig struct {
	Interval         string `yaml:"interval"`
	BatchSize        uint64 `yaml:"batch_size"`
	Confirmations    uint64 `yaml:"confirmations"`
	StartBlock       string `yaml:"start_block"`
	Subscribe        bool   `yaml:"subscribe"`
	ResubscribeDelay string `yaml:"resubscribe_delay"`
	TxDetails        bool   `yaml:"tx_details"`
}

// PoolsConfig controls discovery of Uniswap pools that trade the token.
// Factory addresses default to the mainnet deployments when empty.
type PoolsConfig struct {
	Track     bool     `yaml:"track"`
	V2Factory string   `yaml:"v2_factory"`
	V3Factory string   `yaml:"v3_factory"`
	Routers   []string `yaml:"routers"`
	Exchanges []string `yaml:"exchanges"`
}

type ReportConfig struct {
	MinAmount     string `yaml:"min_amount"`
	DedupeTTL     string `yaml:"dedupe_ttl"`
	StartupNotice bool   `yaml:"startup_notice"`
}

type Sink struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"`
	Template     string `yaml:"template"`
	URL          string `yaml:"url"`
	Method       string `yaml:"method"`
	BotToken     string `yaml:"bot_token"`
	ChatID       string `yaml:"chat_id"`
	AnimationURL string `yaml:"animation_url"`
	MaxPerMinute int    `yaml:"max_per_minute"`
}

type StorageConfig struct {
	Path      string `yaml:"path"`
	Retention string `yaml:"retention"`
}

var (
	envPattern   = regexp.MustCompile(`\${([A-Za-z_][A-Za-z0-9_]*)}`)
	startPattern = regexp.MustCompile(`^(latest(-\d+)?|\d+)?$`)
)

// Load reads, interpolates env vars, parses YAML, and validates.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}

	if err := loadDotEnv(path); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	interpolated, err := interpolateEnv(string(raw))
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return fmt.Errorf("load .env: %w", err)
		}
	}
	return nil
}

func interpolateEnv(input string) (string, error) {
	missing := []string{}
	out := envPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := envPattern.FindStringSubmatch(match)[1]
		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		missing = append(missing, name)
		return match
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("missing environment variables: %s", strings.Join(dedup(missing), ", "))
	}
	return out, nil
}

// Validate performs small, direct schema checks and fills defaults.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return errors.New("version is required")
	}
	if err := c.Node.Validate(c.Watch.Subscribe); err != nil {
		return fmt.Errorf("node: %w", err)
	}
	if err := c.Token.Validate(); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	if err := c.Watch.Validate(); err != nil {
		return fmt.Errorf("watch: %w", err)
	}
	if err := c.Pools.Validate(); err != nil {
		return fmt.Errorf("pools: %w", err)
	}
	if err := c.Report.Validate(); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if len(c.Sinks) == 0 {
		return errors.New("at least one sink is required")
	}
	sinkIDs := map[string]struct{}{}
	for i := range c.Sinks {
		s := &c.Sinks[i]
		if _, exists := sinkIDs[s.ID]; exists {
			return fmt.Errorf("duplicate sink id: %s", s.ID)
		}
		sinkIDs[s.ID] = struct{}{}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("sink %s: %w", s.ID, err)
		}
	}

	return nil
}

func (n *NodeConfig) Validate(subscribe bool) error {
	if n.RPCURL == "" {
		return errors.New("rpc_url is required")
	}
	if subscribe && n.WSURL == "" {
		return errors.New("ws_url is required when watch.subscribe is set")
	}
	if n.ExplorerURL == "" {
		n.ExplorerURL = "https://etherscan.io"
	}
	return nil
}

func (t *TokenConfig) Validate() error {
	if t.Address == "" {
		return errors.New("address is required")
	}
	if !common.IsHexAddress(t.Address) {
		return fmt.Errorf("invalid address: %s", t.Address)
	}
	if t.Decimals != nil && (*t.Decimals < 0 || *t.Decimals > 77) {
		return fmt.Errorf("invalid decimals: %d", *t.Decimals)
	}
	return nil
}

// Addr returns the token contract address. Call after Validate.
func (t *TokenConfig) Addr() common.Address {
	return common.HexToAddress(t.Address)
}

func (w *WatchConfig) Validate() error {
	if w.Interval == "" {
		w.Interval = "12s"
	}
	if _, err := time.ParseDuration(w.Interval); err != nil {
		return fmt.Errorf("invalid interval: %w", err)
	}
	if w.BatchSize == 0 {
		w.BatchSize = 200
	}
	if !startPattern.MatchString(w.StartBlock) {
		return fmt.Errorf("invalid start_block: %s", w.StartBlock)
	}
	if w.ResubscribeDelay == "" {
		w.ResubscribeDelay = "5s"
	}
	if _, err := time.ParseDuration(w.ResubscribeDelay); err != nil {
		return fmt.Errorf("invalid resubscribe_delay: %w", err)
	}
	return nil
}

func (p *PoolsConfig) Validate() error {
	for _, a := range append(append([]string{}, p.Routers...), p.Exchanges...) {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid address: %s", a)
		}
	}
	if p.V2Factory != "" && !common.IsHexAddress(p.V2Factory) {
		return fmt.Errorf("invalid v2_factory: %s", p.V2Factory)
	}
	if p.V3Factory != "" && !common.IsHexAddress(p.V3Factory) {
		return fmt.Errorf("invalid v3_factory: %s", p.V3Factory)
	}
	return nil
}

func (r *ReportConfig) Validate() error {
	if r.MinAmount != "" {
		f, ok := new(big.Float).SetString(r.MinAmount)
		if !ok || f.Sign() < 0 {
			return fmt.Errorf("invalid min_amount: %s", r.MinAmount)
		}
	}
	if r.DedupeTTL == "" {
		r.DedupeTTL = "24h"
	}
	if _, err := time.ParseDuration(r.DedupeTTL); err != nil {
		return fmt.Errorf("invalid dedupe_ttl: %w", err)
	}
	return nil
}

func (s *Sink) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.Type == "" {
		return errors.New("type is required")
	}
	if s.MaxPerMinute < 0 {
		return fmt.Errorf("invalid max_per_minute: %d", s.MaxPerMinute)
	}

	switch strings.ToLower(s.Type) {
	case "console":
	case "telegram":
		if s.BotToken == "" {
			return errors.New("bot_token is required for telegram sinks")
		}
		if s.ChatID == "" {
			return errors.New("chat_id is required for telegram sinks")
		}
	case "webhook":
		if s.URL == "" {
			return errors.New("url is required for webhook sinks")
		}
		if s.Method == "" {
			s.Method = "POST"
		}
	default:
		return fmt.Errorf("unsupported sink type: %s", s.Type)
	}
	return nil
}

func (s *StorageConfig) Validate() error {
	if s.Path == "" {
		s.Path = "spider.db"
	}
	if s.Retention == "" {
		s.Retention = "168h"
	}
	if _, err := time.ParseDuration(s.Retention); err != nil {
		return fmt.Errorf("invalid retention: %w", err)
	}
	return nil
}

// Duration parses d, falling back when d is empty or malformed.
// Config validation guarantees well-formed values for loaded configs.
func Duration(d string, fallback time.Duration) time.Duration {
	if d == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(d)
	if err != nil {
		return fallback
	}
	return parsed
}

func dedup(values []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
