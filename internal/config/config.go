// Package config loads dap4dump settings from defaults, an optional config
// file, DAP4_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/robert-malhotra/go-dap4/dap4"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DAP4"

// Keys.
const (
	KeyLogLevel    = "log-level"
	KeyLogFormat   = "log-format"
	KeyChecksum    = "checksum"
	KeyAlgorithm   = "checksum-algorithm"
	KeyBackends    = "backends"
	KeyFixtures    = "fixtures"
	KeyConcurrency = "concurrency"
)

// Backend names accepted in Backends.
const (
	BackendMem    = "mem"
	BackendNetCDF = "netcdf"
	BackendNC4    = "nc4"
)

var knownBackends = map[string]bool{BackendMem: true, BackendNetCDF: true, BackendNC4: true}

// Config holds the settings of a dap4dump run.
type Config struct {
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
	// Checksum is a ChecksumMode name.
	Checksum string `mapstructure:"checksum"`
	// Algorithm names the checksum function; empty means crc32.
	Algorithm string `mapstructure:"checksum-algorithm"`
	// Backends lists backend names in match order.
	Backends []string `mapstructure:"backends"`
	// Fixtures are YAML files loaded into the mem backend catalog.
	Fixtures    []string `mapstructure:"fixtures"`
	Concurrency int      `mapstructure:"concurrency"`
}

// New returns a viper instance with defaults and environment lookup set
// up. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyChecksum, dap4.ChecksumDAP.String())
	v.SetDefault(KeyAlgorithm, dap4.AlgorithmCRC32.String())
	v.SetDefault(KeyBackends, []string{BackendMem, BackendNetCDF, BackendNC4})
	v.SetDefault(KeyFixtures, []string{})
	v.SetDefault(KeyConcurrency, 4)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if one is named, and returns the validated
// settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", file, err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", KeyLogLevel, err))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		result = multierror.Append(result, fmt.Errorf("%s: must be text or json, got %q", KeyLogFormat, c.LogFormat))
	}
	if _, err := dap4.ParseChecksumMode(c.Checksum); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", KeyChecksum, err))
	}
	if c.Algorithm != "" {
		if _, err := dap4.ParseChecksumAlgorithm(c.Algorithm); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", KeyAlgorithm, err))
		}
	}
	if len(c.Backends) == 0 {
		result = multierror.Append(result, errors.New("backends: at least one is required"))
	}
	for _, b := range c.Backends {
		if !knownBackends[b] {
			result = multierror.Append(result, fmt.Errorf("backends: unknown backend %q", b))
		}
	}
	if c.Concurrency < 1 {
		result = multierror.Append(result, fmt.Errorf("%s: must be at least 1, got %d", KeyConcurrency, c.Concurrency))
	}
	return result.ErrorOrNil()
}

// ChecksumMode returns the parsed checksum mode. The config must be valid.
func (c *Config) ChecksumMode() dap4.ChecksumMode {
	m, _ := dap4.ParseChecksumMode(c.Checksum)
	return m
}

// ChecksumAlgorithm returns the parsed checksum algorithm. The config must
// be valid.
func (c *Config) ChecksumAlgorithm() dap4.ChecksumAlgorithm {
	if c.Algorithm == "" {
		return dap4.AlgorithmCRC32
	}
	alg, _ := dap4.ParseChecksumAlgorithm(c.Algorithm)
	return alg
}

// Logger returns a logger with the configured level and format.
func (c *Config) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return log, nil
}
