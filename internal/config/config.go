package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Client configures the operator REPL.
type Client struct {
	APIURL       string        `env:"DISPATCH_API_URL,default=http://127.0.0.1:8000/api"`
	APITimeout   time.Duration `env:"DISPATCH_API_TIMEOUT,default=20s"`
	SessionFile  string        `env:"DISPATCH_SESSION_FILE"`
	LogLevel     string        `env:"DISPATCH_LOG_LEVEL,default=info"`
	MetricsAddr  string        `env:"DISPATCH_METRICS_ADDR"`
	KafkaBrokers string        `env:"DISPATCH_KAFKA_BROKERS"`
	AuditTopic   string        `env:"DISPATCH_AUDIT_TOPIC,default=dispatch_audit"`

	// EnvFile is the .env file that was loaded, if any.
	EnvFile string
}

// Stub configures the in-memory dispatch API.
type Stub struct {
	Addr      string        `env:"STUB_API_ADDR,default=:8000"`
	JWTSecret string        `env:"STUB_JWT_SECRET,default=stub-dispatch-secret"`
	TokenTTL  time.Duration `env:"STUB_TOKEN_TTL,default=24h"`
	LogLevel  string        `env:"STUB_LOG_LEVEL,default=info"`

	EnvFile string
}

// Consumer configures the audit topic reader.
type Consumer struct {
	KafkaBrokers string `env:"DISPATCH_KAFKA_BROKERS,default=localhost:9092"`
	AuditTopic   string `env:"DISPATCH_AUDIT_TOPIC,default=dispatch_audit"`
	GroupID      string `env:"DISPATCH_AUDIT_GROUP,default=dispatch-audit-consumer"`
	LogLevel     string `env:"DISPATCH_LOG_LEVEL,default=info"`

	EnvFile string
}

func (c *Client) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func (c *Consumer) Brokers() []string {
	return splitList(c.KafkaBrokers)
}

func LoadClient() (*Client, error) {
	cfg := &Client{EnvFile: loadEnv()}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode client config: %w", err)
	}

	if cfg.SessionFile == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config dir for the session file: %w", err)
		}
		cfg.SessionFile = filepath.Join(dir, "truckdispatch", "session.json")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Client) validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil {
		return fmt.Errorf("invalid DISPATCH_API_URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid DISPATCH_API_URL %q: scheme must be http or https", c.APIURL)
	}
	if c.APITimeout <= 0 {
		return errors.New("DISPATCH_API_TIMEOUT must be positive")
	}
	return nil
}

func LoadStub() (*Stub, error) {
	cfg := &Stub{EnvFile: loadEnv()}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode stub config: %w", err)
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("STUB_TOKEN_TTL must be positive")
	}
	return cfg, nil
}

func LoadConsumer() (*Consumer, error) {
	cfg := &Consumer{EnvFile: loadEnv()}
	if err := envdecode.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode consumer config: %w", err)
	}
	if len(cfg.Brokers()) == 0 {
		return nil, errors.New("DISPATCH_KAFKA_BROKERS is empty")
	}
	return cfg, nil
}

// loadEnv looks for a .env file in the working directory and its two
// parents. Variables already set in the environment win.
func loadEnv() string {
	wd, err := os.Getwd()
	if err != nil {
		return ""
	}

	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	for _, envPath := range possiblePaths {
		if err := godotenv.Load(envPath); err == nil {
			return envPath
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
