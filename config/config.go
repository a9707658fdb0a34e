// Package config loads the settings of the trust and verification engine
// from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	"github.com/digitorus/pdftrust/chain"
	"github.com/digitorus/pdftrust/revocation"
	"github.com/digitorus/pdftrust/truststore"
)

// DefaultLocation is where the CLI looks for a config file when none is
// given.
var DefaultLocation = "./pdftrust.toml"

// ErrUnsupportedFormat is returned for config files that are neither TOML
// nor YAML.
var ErrUnsupportedFormat = errors.New("unsupported config format")

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error in '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Duration is a time.Duration written as "5s" in config files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// OCSP configures live revocation queries.
type OCSP struct {
	Enabled        bool     `toml:"enabled" yaml:"enabled" json:"enabled"`
	ConnectTimeout Duration `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    Duration `toml:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
}

// Config is the root of the config
type Config struct {
	// BundledDir holds read-only anchors shipped with the installation.
	BundledDir string `toml:"bundled_dir" yaml:"bundled_dir" json:"bundled_dir" valid:"optional"`
	// UserDir holds anchors added with "trust add".
	UserDir    string `toml:"user_dir" yaml:"user_dir" json:"user_dir" valid:"required"`
	UseOSStore bool   `toml:"use_os_store" yaml:"use_os_store" json:"use_os_store"`

	OCSP OCSP `toml:"ocsp" yaml:"ocsp" json:"ocsp"`

	StrictCertification bool `toml:"strict_certification" yaml:"strict_certification" json:"strict_certification"`
	Parallelism         int  `toml:"parallelism" yaml:"parallelism" json:"parallelism" valid:"required,range(1|64)"`
	MaxChainIterations  int  `toml:"max_chain_iterations" yaml:"max_chain_iterations" json:"max_chain_iterations" valid:"required,range(1|100)"`

	LogLevel string `toml:"log_level" yaml:"log_level" json:"log_level" valid:"required,in(debug|info|warn|error)"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		UserDir:    filepath.Join("~", ".pdftrust", "trusted-certs"),
		UseOSStore: true,
		OCSP: OCSP{
			Enabled:        true,
			ConnectTimeout: Duration(revocation.DefaultConnectTimeout),
			ReadTimeout:    Duration(revocation.DefaultReadTimeout),
		},
		Parallelism:        1,
		MaxChainIterations: chain.DefaultMaxIterations,
		LogLevel:           "warn",
	}
}

// ValidateFields validates all the fields of the config
func (c Config) ValidateFields() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return &ConfigError{Message: err.Error(), Err: err}
	}
	if c.OCSP.ConnectTimeout <= 0 {
		return &ConfigError{Field: "ocsp.connect_timeout", Message: "must be positive"}
	}
	if c.OCSP.ReadTimeout <= 0 {
		return &ConfigError{Field: "ocsp.read_timeout", Message: "must be positive"}
	}
	return nil
}

// Load reads path over the defaults and validates the result. The format
// follows the file extension: .toml and .conf are TOML, .yaml and .yml
// are YAML.
func Load(path string) (Config, error) {
	c := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("config file is missing: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml", ".conf":
		md, err := toml.Decode(string(data), &c)
		if err != nil {
			return c, &ConfigError{Message: "invalid TOML", Err: err}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return c, &ConfigError{Field: undecoded[0].String(), Message: "unexpected field in configuration"}
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, &ConfigError{Message: "invalid YAML", Err: err}
		}
	default:
		return c, &ConfigError{Message: fmt.Sprintf("cannot read %s", filepath.Base(path)), Err: ErrUnsupportedFormat}
	}

	if err := c.ValidateFields(); err != nil {
		return c, err
	}
	return c, nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/")), nil
}

// TrustStoreOptions converts the trust store settings.
func (c Config) TrustStoreOptions() (truststore.Options, error) {
	userDir, err := ExpandHome(c.UserDir)
	if err != nil {
		return truststore.Options{}, &ConfigError{Field: "user_dir", Message: "cannot resolve home directory", Err: err}
	}
	opts := truststore.Options{UserDir: userDir, UseOSStore: c.UseOSStore}
	if c.BundledDir != "" {
		dir, err := ExpandHome(c.BundledDir)
		if err != nil {
			return truststore.Options{}, &ConfigError{Field: "bundled_dir", Message: "cannot resolve home directory", Err: err}
		}
		opts.Bundled = os.DirFS(dir)
	}
	return opts, nil
}

// RevocationOptions converts the OCSP settings.
func (c Config) RevocationOptions() revocation.Options {
	return revocation.Options{
		Live:           c.OCSP.Enabled,
		ConnectTimeout: time.Duration(c.OCSP.ConnectTimeout),
		ReadTimeout:    time.Duration(c.OCSP.ReadTimeout),
	}
}
