package cli

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

const envPrefix = "AUTHCTL_"

// Settings gathers everything the CLI needs to build a session manager.
type Settings struct {
	ConfigPath string
	APIURL     string
	Timeout    time.Duration
	JWKSURL    string

	// StorePath is the sqlite file holding the credential
	StorePath string
	// RedisAddr switches the credential store to redis when set
	RedisAddr  string
	RedisKey   string
	Passphrase string

	Verbose bool
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".authctl", "session.db")
	}
	return filepath.Join(home, ".authctl", "session.db")
}

func envOr(name, fallback string) string {
	if v := os.Getenv(envPrefix + name); v != "" {
		return v
	}
	return fallback
}

func bindFlags(cmd *cobra.Command, s *Settings) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&s.ConfigPath, "config", envOr("CONFIG", ""), "lifecycle policy file (YAML)")
	flags.StringVar(&s.APIURL, "api", envOr("API_URL", "http://localhost:8080/api"), "identity service base URL")
	flags.DurationVar(&s.Timeout, "timeout", 10*time.Second, "request timeout")
	flags.StringVar(&s.JWKSURL, "jwks", envOr("JWKS_URL", ""), "JWKS endpoint used to verify stored credentials")
	flags.StringVar(&s.StorePath, "store", envOr("STORE", defaultStorePath()), "sqlite file holding the credential")
	flags.StringVar(&s.RedisAddr, "redis", envOr("REDIS_ADDR", ""), "keep the credential in redis at this address")
	flags.StringVar(&s.RedisKey, "redis-key", envOr("REDIS_KEY", ""), "redis key for the credential")
	flags.BoolVarP(&s.Verbose, "verbose", "v", false, "log activity events and diagnostics")

	// the passphrase only comes from the environment so it never lands in shell history
	s.Passphrase = os.Getenv(envPrefix + "PASSPHRASE")
}
