// Package config loads the optional YAML file that tunes connection limits.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenPeeDeeP/xdg"
	"gopkg.in/yaml.v3"

	"github.com/vipnode/jsonrpc/jsonrpc2"
)

// FileName is looked up in the XDG config home when no path is given.
const FileName = "config.yaml"

// Options mirrors the tunable parts of jsonrpc2.Config. Zero values keep the
// library defaults.
type Options struct {
	MaxPayload int           `yaml:"max_payload"`
	Timeout    time.Duration `yaml:"timeout"`
	Workers    int           `yaml:"workers"`
	Logging    bool          `yaml:"logging"`
}

// DefaultPath returns where the config file lives when none is specified.
func DefaultPath() string {
	return filepath.Join(xdg.New("vipnode", "jsonrpc").ConfigHome(), FileName)
}

// Load reads and validates the file at path. An empty path means
// DefaultPath, which may be missing; an explicit path must exist.
func Load(path string) (Options, error) {
	var opts Options
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return opts, nil
		}
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("config %s: %w", path, err)
	}
	if err := opts.Validate(); err != nil {
		return opts, fmt.Errorf("config %s: %w", path, err)
	}
	return opts, nil
}

func (o Options) Validate() error {
	if o.MaxPayload < 0 {
		return fmt.Errorf("max_payload must not be negative: %d", o.MaxPayload)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %s", o.Timeout)
	}
	if o.Workers < 0 {
		return fmt.Errorf("workers must not be negative: %d", o.Workers)
	}
	return nil
}

// Apply copies the options that are set onto cfg.
func (o Options) Apply(cfg jsonrpc2.Config) jsonrpc2.Config {
	if o.MaxPayload > 0 {
		cfg.MaxPayload = o.MaxPayload
	}
	if o.Timeout > 0 {
		cfg.Timeout = o.Timeout
	}
	if o.Workers > 0 {
		cfg.Workers = o.Workers
	}
	if o.Logging {
		cfg.Logging = true
	}
	return cfg
}
