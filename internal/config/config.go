// Package config persists tool settings in a JSON file managed by
// viper. Values whose key looks secret are encrypted at rest and
// decrypted transparently on read.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/v0xg/replaybot/internal/cipher"
	"github.com/v0xg/replaybot/internal/logging"
)

// encPrefix marks a stored value as encrypted
const encPrefix = "enc:"

// defaultFile is where settings land when no config file exists yet
const defaultFile = "replaybot.json"

// Options configures the store
type Options struct {
	// Path points at an explicit config file; when empty the store
	// searches the working directory and the user config directory
	Path string
	// Passphrase guards secret values; empty selects the machine default
	Passphrase string
	Logger     *slog.Logger
}

// Store reads and writes tool settings
type Store struct {
	v      *viper.Viper
	cipher *cipher.Cipher
	log    *slog.Logger
}

// Environment holds the connection details of one named target system
type Environment struct {
	URL        string
	Username   string
	Password   string
	RecordPath string
}

// Open loads settings from disk, falling back to defaults when no
// config file exists
func Open(opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	v := viper.New()
	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
	} else {
		v.SetConfigName("replaybot")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "replaybot"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix("REPLAYBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		log.Debug("config file not found, starting from defaults")
	} else {
		log.Debug("config loaded", "file", v.ConfigFileUsed())
	}

	return &Store{
		v:      v,
		cipher: cipher.New(opts.Passphrase),
		log:    log,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "claude")
	v.SetDefault("model", "")
	v.SetDefault("artifacts_root", "./artifacts")
	v.SetDefault("artifact_prefix", "")
	v.SetDefault("headful", false)
	v.SetDefault("screenshots", false)
	v.SetDefault("viewport", "Full_HD")
	v.SetDefault("pacing", "fixed")
	v.SetDefault("storage", "local")
	v.SetDefault("local_store_root", "./records")
}

// Get returns the value at key, decrypting it when it was stored
// encrypted
func (s *Store) Get(key string) (string, error) {
	val := s.v.GetString(key)
	if strings.HasPrefix(val, encPrefix) {
		plain, err := s.cipher.Decrypt(strings.TrimPrefix(val, encPrefix))
		if err != nil {
			return "", fmt.Errorf("decrypt %s: %w", key, err)
		}
		return plain, nil
	}
	return val, nil
}

// GetBool returns the boolean at key
func (s *Store) GetBool(key string) bool {
	return s.v.GetBool(key)
}

// Set stores value under key and persists the file. Secret-looking
// keys are encrypted before they touch disk.
func (s *Store) Set(key, value string) error {
	if IsSensitive(key) {
		tok, err := s.cipher.Encrypt(value)
		if err != nil {
			return fmt.Errorf("encrypt %s: %w", key, err)
		}
		value = encPrefix + tok
	}
	s.v.Set(key, value)
	return s.save()
}

// Override sets an in-memory value that wins over file and environment,
// used for command line flags. It is never persisted.
func (s *Store) Override(key string, value any) {
	s.v.Set(key, value)
}

// Path reports the config file backing the store, if any
func (s *Store) Path() string {
	return s.v.ConfigFileUsed()
}

// Environment resolves a named environment block, decrypting its
// password
func (s *Store) Environment(name string) (Environment, error) {
	base := "environments." + name
	if !s.v.IsSet(base) {
		return Environment{}, fmt.Errorf("environment %q not configured", name)
	}
	password, err := s.Get(base + ".password")
	if err != nil {
		return Environment{}, err
	}
	return Environment{
		URL:        s.v.GetString(base + ".url"),
		Username:   s.v.GetString(base + ".username"),
		Password:   password,
		RecordPath: s.v.GetString(base + ".record_path"),
	}, nil
}

func (s *Store) save() error {
	if s.v.ConfigFileUsed() != "" {
		return s.v.WriteConfig()
	}
	s.log.Debug("creating config file", "file", defaultFile)
	return s.v.WriteConfigAs(defaultFile)
}

// IsSensitive reports whether a key's last segment names a credential
func IsSensitive(key string) bool {
	seg := key
	if i := strings.LastIndex(key, "."); i >= 0 {
		seg = key[i+1:]
	}
	seg = strings.ToLower(seg)
	for _, marker := range []string{"password", "pass", "token", "secret", "key"} {
		if strings.Contains(seg, marker) {
			return true
		}
	}
	return false
}

// ParseSetCommand splits a "set <key> <value>" prompt. The value keeps
// its spaces verbatim.
func ParseSetCommand(prompt string) (key, value string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(prompt), " ", 3)
	if len(parts) != 3 || parts[0] != "set" {
		return "", "", false
	}
	key = strings.TrimSpace(parts[1])
	value = strings.TrimSpace(parts[2])
	if key == "" || value == "" {
		return "", "", false
	}
	return key, value, true
}
