package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/nebula/pkg/core"
)

// ConfigFile is the name of the optional configuration file at a repository root.
const ConfigFile = "nebula.yaml"

// Config is the on-disk configuration read by the CLI.
type Config struct {
	Adapter       string        `yaml:"adapter" validate:"required,oneof=fs memory remote"`
	Root          string        `yaml:"root" validate:"required_if=Adapter fs"`
	URL           string        `yaml:"url" validate:"required_if=Adapter remote,omitempty,url"`
	Timeout       time.Duration `yaml:"timeout" validate:"gte=0"`
	KeyFile       string        `yaml:"keyFile"`
	Listen        string        `yaml:"listen" validate:"omitempty,hostname_port"`
	CacheCapacity int           `yaml:"cacheCapacity" validate:"gte=0"`
	ReadOnly      bool          `yaml:"readOnly"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig(root string) Config {
	return Config{
		Adapter:       "fs",
		Root:          root,
		Timeout:       10 * time.Second,
		KeyFile:       filepath.Join(root, SystemDir, "notary.key"),
		Listen:        "localhost:8420",
		CacheCapacity: core.DefaultCacheCapacity,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadConfig reads nebula.yaml from root, layering it over DefaultConfig.
// A missing file is not an error. Relative paths are resolved against root.
func LoadConfig(root string) (Config, error) {
	cfg := DefaultConfig(root)

	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("failed to read %s: %w", ConfigFile, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: failed to parse %s: %v", core.ErrInvalidParameter, ConfigFile, err)
		}
	}

	for _, p := range []*string{&cfg.Root, &cfg.KeyFile} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(root, *p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid configuration: %s", core.ErrInvalidParameter, strings.Join(msgs, ", "))
		}
		return fmt.Errorf("%w: invalid configuration: %v", core.ErrInvalidParameter, err)
	}
	return nil
}

// Location returns the adapter-specific URI passed to Init.
func (c Config) Location() string {
	if c.Adapter == "remote" {
		return c.URL
	}
	return c.Root
}

// Options translates the configuration into functional options.
func (c Config) Options() []Option {
	opts := []Option{
		WithAdapter(c.Adapter),
		WithTimeout(c.Timeout),
		WithCacheCapacity(c.CacheCapacity),
		WithReadOnly(c.ReadOnly),
	}
	if c.KeyFile != "" {
		opts = append(opts, WithKeyFile(c.KeyFile))
	}
	return opts
}
