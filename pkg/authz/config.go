package authz

import (
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/legacy-migrator/pkg/configuration"
)

// Config captures all inputs necessary to initialize the Casbin enforcer.
type Config struct {
	ModelPath  string
	PolicyPath string
	// FlagPath is re-read on every decision; FlagProvider overrides it.
	FlagPath     string
	FlagMode     Mode
	Logger       *logrus.Logger
	FlagProvider FlagProvider
}

// prepare validates c and returns it with cleaned paths.
func (c Config) prepare() (Config, error) {
	switch {
	case c.ModelPath == "":
		return c, configError("missing model path")
	case c.PolicyPath == "":
		return c, configError("missing policy path")
	case c.FlagPath == "" && c.FlagProvider == nil:
		return c, configError("missing flag configuration path")
	}
	c.ModelPath = filepath.Clean(c.ModelPath)
	c.PolicyPath = filepath.Clean(c.PolicyPath)
	if c.FlagPath != "" {
		c.FlagPath = filepath.Clean(c.FlagPath)
	}
	c.FlagMode = sanitizeMode(c.FlagMode)
	return c, nil
}

// ConfigFromOptions maps the AUTHZ_* settings onto a Config.
func ConfigFromOptions(opts configuration.AuthzOptions, logger *logrus.Logger) Config {
	return Config{
		ModelPath:  opts.ModelPath,
		PolicyPath: opts.PolicyPath,
		FlagPath:   opts.FlagConfigPath,
		FlagMode:   Mode(opts.Mode),
		Logger:     logger,
	}
}

// DefaultConfig builds a Config from the global configuration singleton.
func DefaultConfig() Config {
	conf := configuration.Use()
	return ConfigFromOptions(conf.Authz, conf.Logger())
}
