// Package config loads the optional defaults file. Values here seed the
// command-line flags; anything given explicitly on the command line wins.
package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/walteh/drivecp/pkg/replicate"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the working directory and the home
// directory when no --config flag is given.
const DefaultFileName = ".drivecp"

// Config holds replication defaults.
type Config struct {
	Verbose       bool     `json:"verbose,omitempty" yaml:"verbose,omitempty" hcl:"verbose,optional"`
	Conflicts     string   `json:"conflicts,omitempty" yaml:"conflicts,omitempty" hcl:"conflicts,optional"`
	Shortcuts     string   `json:"shortcuts,omitempty" yaml:"shortcuts,omitempty" hcl:"shortcuts,optional"`
	CopyPerms     bool     `json:"perms,omitempty" yaml:"perms,omitempty" hcl:"perms,optional"`
	SendEmails    bool     `json:"emails,omitempty" yaml:"emails,omitempty" hcl:"emails,optional"`
	CopyComments  bool     `json:"comments,omitempty" yaml:"comments,omitempty" hcl:"comments,optional"`
	Patterns      []string `json:"match,omitempty" yaml:"match,omitempty" hcl:"match,optional"`
	PatternFiles  []string `json:"match_files,omitempty" yaml:"match_files,omitempty" hcl:"match_files,optional"`
	DedupFollowed bool     `json:"dedup_followed,omitempty" yaml:"dedup_followed,omitempty" hcl:"dedup_followed,optional"`
	Parallel      int      `json:"parallel,omitempty" yaml:"parallel,omitempty" hcl:"parallel,optional"`

	location string
}

// Location returns the path the config was loaded from, or "" for defaults.
func (c *Config) Location() string {
	return c.location
}

// Load reads a configuration file. The format is determined by the file
// extension:
// - .json for JSON
// - .yaml or .yml for YAML
// - .hcl for HCL
// - .drivecp will try both YAML and HCL formats
func Load(ctx context.Context, path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	var cfg *Config

	if ext == ".drivecp" || filepath.Base(path) == DefaultFileName {
		cfg, err = loadYAML(data)
		if err != nil {
			cfg, err = loadHCL(data, path)
		}
		if err != nil {
			return nil, errors.Errorf("parsing %s as YAML or HCL: %w", path, err)
		}
	} else {
		switch ext {
		case ".json":
			cfg, err = loadJSON(data)
		case ".yaml", ".yml":
			cfg, err = loadYAML(data)
		case ".hcl":
			cfg, err = loadHCL(data, path)
		default:
			return nil, errors.Errorf("unsupported config extension %q", ext)
		}
		if err != nil {
			return nil, err
		}
	}

	cfg.location = path
	if err := cfg.Validate(ctx); err != nil {
		return nil, errors.Errorf("validating config %s: %w", path, err)
	}
	return cfg, nil
}

// Locate finds a defaults file without an explicit path: first the working
// directory, then the home directory. A missing file is not an error; the
// zero config is returned.
func Locate(ctx context.Context) (*Config, error) {
	candidates := []string{DefaultFileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultFileName))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return Load(ctx, candidate)
		}
	}
	return &Config{}, nil
}

// Validate checks that mode names parse and counts are sane.
func (c *Config) Validate(ctx context.Context) error {
	if _, err := replicate.ParseConflictMode(c.Conflicts); err != nil {
		return err
	}
	if _, err := replicate.ParseShortcutPolicy(c.Shortcuts); err != nil {
		return err
	}
	if c.Parallel < 0 {
		return errors.Errorf("parallel must not be negative, got %d", c.Parallel)
	}
	return nil
}

func loadJSON(data []byte) (*Config, error) {
	var cfg Config
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing JSON: %w", err)
	}
	return &cfg, nil
}

func loadYAML(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}
	return &cfg, nil
}

func loadHCL(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var cfg Config
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &cfg)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}
	return &cfg, nil
}
