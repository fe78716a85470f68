// Package server implements the StarfieldDB HTTP server.
//
// This file defines the Go structs that correspond to the optional YAML
// configuration file. The file carries server-wide search policy overrides
// and a declarative list of fields to ensure at startup, so a deployment
// can describe its starfields next to its infrastructure instead of seeding
// them through the API.
package server

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starfielddb/starfielddb/pkg/core/galaxy"
)

// Config represents the top-level structure of the configuration file.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Fields []FieldSpec  `yaml:"fields"`
}

// ServerConfig holds engine policy overrides. Zero values keep the
// built-in defaults.
type ServerConfig struct {
	AuthToken        string  `yaml:"auth_token"`
	TargetScanBudget int     `yaml:"target_scan_budget"`
	RayScanBudget    int     `yaml:"ray_scan_budget"`
	MaxPickDistance  float64 `yaml:"max_pick_distance"`
	OffloadDisabled  bool    `yaml:"offload_disabled"`
}

// FieldSpec declares one field to ensure at startup. Generation parameters
// left at zero fall back to the galaxy defaults, mirroring how index
// creation options default elsewhere in the API.
type FieldSpec struct {
	Name      string  `yaml:"name"`
	Count     int     `yaml:"count"`
	Arms      int     `yaml:"arms"`
	Radius    float32 `yaml:"radius"`
	Twist     float32 `yaml:"twist"`
	Thickness float32 `yaml:"thickness"`
	Spread    float32 `yaml:"spread"`
	Seed      int64   `yaml:"seed"`
}

// Params converts the declaration to generation parameters, filling unset
// values from the defaults.
func (fs FieldSpec) Params() galaxy.Params {
	p := galaxy.DefaultParams()
	if fs.Count > 0 {
		p.Count = fs.Count
	}
	if fs.Arms > 0 {
		p.Arms = fs.Arms
	}
	if fs.Radius > 0 {
		p.Radius = fs.Radius
	}
	if fs.Twist != 0 {
		p.Twist = fs.Twist
	}
	if fs.Thickness > 0 {
		p.Thickness = fs.Thickness
	}
	if fs.Spread > 0 {
		p.Spread = fs.Spread
	}
	if fs.Seed != 0 {
		p.Seed = fs.Seed
	}
	return p
}

// LoadConfig reads and parses the YAML configuration file from the given
// path. It uses Strict Mode (KnownFields) to prevent silent errors due to
// typos, and expands environment variables so tokens can stay out of the
// file itself.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	expandedData := os.ExpandEnv(string(data))

	var config Config
	decoder := yaml.NewDecoder(strings.NewReader(expandedData))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("YAML syntax error in '%s': %w", path, err)
	}

	return &config, nil
}
