package config

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

type Config struct {
	Mode    Mode          `toml:"-"`
	Service ServiceConfig `toml:"service"`
	HTTP    HTTPConfig    `toml:"http"`
	Redis   RedisConfig   `toml:"redis"`
	Auth    AuthConfig    `toml:"auth"`
	Oracle  OracleConfig  `toml:"oracle"`
	Log     LogConfig     `toml:"log"`
}

type ServiceConfig struct {
	Mode string `toml:"mode"`
}

type HTTPConfig struct {
	Addr          string `toml:"addr"`
	SecureCookies bool   `toml:"secure_cookies"`
	CookieDomain  string `toml:"cookie_domain"`
}

type RedisConfig struct {
	// URL selects the Redis backends; empty keeps everything in memory
	URL string `toml:"url"`
}

type AuthConfig struct {
	// SigningKey is a PEM encoded P-256 private key for session tokens
	SigningKey      string   `toml:"signing_key"`
	BypassAddresses []string `toml:"bypass_addresses"`
	SIWEDomain      string   `toml:"siwe_domain"`
}

type OracleConfig struct {
	// RPCURL of a World Chain node; empty selects the static oracle
	RPCURL      string `toml:"rpc_url"`
	AddressBook string `toml:"address_book"`
	// VerifiedAddresses feed the static oracle
	VerifiedAddresses []string `toml:"verified_addresses"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Pretty bool   `toml:"pretty"`
}

func defaults() Config {
	return Config{
		Service: ServiceConfig{Mode: "local"},
		HTTP:    HTTPConfig{Addr: ":9000", SecureCookies: true},
		Log:     LogConfig{Level: "info"},
	}
}

// New loads .env files, the TOML file named by CONFIG and environment overrides
func New() (*Config, error) {
	loadDotEnv()

	cfg := defaults()
	if fileName := os.Getenv("CONFIG"); fileName != "" {
		if _, err := toml.DecodeFile(fileName, &cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config %s: %w", fileName, err)
		}
	}

	applyEnv(&cfg)

	var mode Mode
	switch cfg.Service.Mode {
	case "local":
		mode = LocalMode
	case "dev", "development":
		mode = DevelopmentMode
	case "prod", "production":
		mode = ProductionMode
	default:
		return nil, fmt.Errorf("config service.mode value is invalid, must be one of \"local\", \"development\", \"dev\", \"production\" or \"prod\"")
	}
	cfg.Mode = mode
	cfg.Service.Mode = mode.String()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadDotEnv never overrides variables already set in the environment
func loadDotEnv() {
	for _, name := range []string{".env", ".env.local"} {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		if err := godotenv.Load(name); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s file: %v\n", name, err)
		}
	}
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("FORUM_MODE"); ok {
		cfg.Service.Mode = v
	}
	if v, ok := os.LookupEnv("HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok {
		cfg.Redis.URL = v
	}
	if v, ok := os.LookupEnv("SESSION_SIGNING_KEY"); ok {
		cfg.Auth.SigningKey = v
	}
	if v, ok := os.LookupEnv("AUTH_BYPASS_ADDRESSES"); ok {
		cfg.Auth.BypassAddresses = splitList(v)
	}
	if v, ok := os.LookupEnv("ORACLE_RPC_URL"); ok {
		cfg.Oracle.RPCURL = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.Mode != ProductionMode {
		return nil
	}
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required in production mode")
	}
	if c.Oracle.RPCURL == "" {
		return fmt.Errorf("oracle.rpc_url is required in production mode")
	}
	c.HTTP.SecureCookies = true
	return nil
}

// SigningKey parses the configured session key. Without one, outside production,
// a random key is generated and ephemeral is true.
func (c *Config) SigningKey() (key *ecdsa.PrivateKey, ephemeral bool, err error) {
	if c.Auth.SigningKey == "" {
		if c.Mode == ProductionMode {
			return nil, false, fmt.Errorf("refusing ephemeral signing key in production mode")
		}
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, false, fmt.Errorf("failed to generate signing key: %w", err)
		}
		return key, true, nil
	}

	// Environment values often carry escaped newlines
	pemKey := strings.ReplaceAll(c.Auth.SigningKey, `\n`, "\n")
	key, err = jwt.ParseECPrivateKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, false, fmt.Errorf("failed to parse signing key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, false, fmt.Errorf("signing key must use the P-256 curve")
	}
	return key, false, nil
}

type Mode uint32

const (
	LocalMode Mode = iota
	DevelopmentMode
	ProductionMode
)

func (m Mode) String() string {
	switch m {
	case LocalMode:
		return "local"
	case DevelopmentMode:
		return "development"
	case ProductionMode:
		return "production"
	default:
		return ""
	}
}
