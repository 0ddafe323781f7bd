package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"golang.org/x/term"
)

const (
	loginKeyLen        = 32 // AES-256
	loginIVLen         = 16 // AES block
	minScryptSecretLen = 32
)

// Config contains all configuration parameters for the application.
// It is built once by Load and passed to the components that need it.
type Config struct {
	Port          string `envconfig:"PORT" default:"8443"`
	TLSCertFile   string `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile    string `envconfig:"TLS_KEY_FILE"`
	TLSClientCA   string `envconfig:"TLS_CLIENT_CA_FILE"`
	EthRPCURL     string `envconfig:"ETH_RPC_URL" default:"http://127.0.0.1:8545"`
	DBDriver      string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN         string `envconfig:"DB_DSN" default:"file:custody.db?_foreign_keys=on"`
	DBMaxOpen     int    `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat     string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile       string `envconfig:"LOG_FILE"`
	LoginKeyHex   string `envconfig:"LOGIN_CIPHER_KEY" required:"true"`
	LoginIVHex    string `envconfig:"LOGIN_CIPHER_IV" required:"true"`
	ScryptSecretH string `envconfig:"SCRYPT_SECRET"`

	KDF      KDF
	Keystore Keystore
	Receipt  Receipt

	// Decoded secrets, filled by Load.
	LoginKey     []byte `ignored:"true"`
	LoginIV      []byte `ignored:"true"`
	ScryptSecret []byte `ignored:"true"`
}

// KDF holds the scrypt parameters of the per-account secret derivation and
// the throttling applied to it.
type KDF struct {
	N             int     `envconfig:"KDF_SCRYPT_N" default:"32768"`
	R             int     `envconfig:"KDF_SCRYPT_R" default:"8"`
	P             int     `envconfig:"KDF_SCRYPT_P" default:"1"`
	MaxConcurrent int64   `envconfig:"KDF_MAX_CONCURRENT" default:"4"`
	RatePerSecond float64 `envconfig:"KDF_RATE_PER_SECOND" default:"20"`
	Burst         int     `envconfig:"KDF_RATE_BURST" default:"8"`
}

// Keystore holds the scrypt parameters written into keystore v3 documents.
// Defaults are go-ethereum's "light" parameters: the passphrase is already
// a 256-bit derived secret.
type Keystore struct {
	ScryptN int `envconfig:"KEYSTORE_SCRYPT_N" default:"4096"`
	ScryptP int `envconfig:"KEYSTORE_SCRYPT_P" default:"6"`
}

// Receipt controls how long a broadcast waits for block inclusion.
type Receipt struct {
	PollInterval time.Duration `envconfig:"RECEIPT_POLL_INTERVAL" default:"1s"`
	Timeout      time.Duration `envconfig:"RECEIPT_TIMEOUT" default:"10m"`
}

// Load reads configuration from environment variables and decodes the
// hex-encoded server secrets.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.decodeSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decodeSecrets() error {
	var err error
	if c.LoginKey, err = decodeHex("LOGIN_CIPHER_KEY", c.LoginKeyHex, loginKeyLen); err != nil {
		return err
	}
	if c.LoginIV, err = decodeHex("LOGIN_CIPHER_IV", c.LoginIVHex, loginIVLen); err != nil {
		return err
	}
	c.LoginKeyHex, c.LoginIVHex = "", ""

	if c.ScryptSecretH != "" {
		s, err := hex.DecodeString(c.ScryptSecretH)
		if err != nil {
			return fmt.Errorf("SCRYPT_SECRET: %w", err)
		}
		if err := c.SetScryptSecret(s); err != nil {
			return err
		}
		c.ScryptSecretH = ""
	}
	return nil
}

// SetScryptSecret installs the server-side secret mixed into every key
// derivation. The slice is owned by the config afterwards.
func (c *Config) SetScryptSecret(s []byte) error {
	if len(s) < minScryptSecretLen {
		clear(s)
		return fmt.Errorf("scrypt secret must be at least %d bytes", minScryptSecretLen)
	}
	c.ScryptSecret = s
	return nil
}

// Wipe zeroes the server secrets held by the config.
func (c *Config) Wipe() {
	clear(c.LoginKey)
	clear(c.LoginIV)
	clear(c.ScryptSecret)
}

// TLSEnabled reports whether both certificate and key are configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

func decodeHex(name, value string, want int) ([]byte, error) {
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(b) != want {
		return nil, fmt.Errorf("%s: want %d bytes, got %d", name, want, len(b))
	}
	return b, nil
}

// PromptForSecret prompts for the hex-encoded scrypt server secret in the
// terminal when it was not provided through the environment.
// Call this at startup before the server begins handling requests.
func (c *Config) PromptForSecret() error {
	if len(c.ScryptSecret) > 0 {
		return nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("SCRYPT_SECRET not set and stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Enter scrypt server secret (hex): ")
	defer fmt.Fprintln(os.Stderr)

	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("failed to read secret: %w", err)
	}
	defer clear(raw)
	if len(raw) == 0 {
		return errors.New("secret cannot be empty")
	}

	s := make([]byte, hex.DecodedLen(len(raw)))
	if _, err := hex.Decode(s, raw); err != nil {
		clear(s)
		return fmt.Errorf("secret is not valid hex: %w", err)
	}
	return c.SetScryptSecret(s)
}
