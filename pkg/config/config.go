// Package config loads the gtctl YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFile is where gtctl looks for its configuration.
	DefaultFile = "/etc/gtctl/gtctl.conf"

	// DefaultSocket is the dataplane's dynamic configuration socket.
	DefaultSocket = "/var/run/gatekeeper/dyn_cfg.socket"

	DefaultLogLevel = "info"
)

// Config is the top-level configuration.
type Config struct {
	Socket   string           `yaml:"socket"`
	StateDir string           `yaml:"state_dir"`
	Replace  ChunkedTemplates `yaml:"replace"`
	Update   ChunkedTemplates `yaml:"update"`
	Estimate EstimateConfig   `yaml:"estimate"`
	LPM      LPMConfig        `yaml:"lpm"`
	LogLevel string           `yaml:"log_level"`

	RemoveRenderedScripts bool `yaml:"remove_rendered_scripts"`

	// MetricsTextfile, if set, receives the run metrics in Prometheus
	// text format when gtctl exits.
	MetricsTextfile string        `yaml:"metrics_textfile"`
	Syslog          *SyslogConfig `yaml:"syslog"`
}

// Templates pairs a template with the path pattern it renders to.
// Output may contain {proto} and {kind}.
type Templates struct {
	Input  string `yaml:"input"`
	Output string `yaml:"output"`
}

// ChunkedTemplates renders into as many files as needed to keep each
// below MaxRangesPerFile ranges. Output may also contain {i}.
type ChunkedTemplates struct {
	Templates        `yaml:",inline"`
	MaxRangesPerFile int `yaml:"max_ranges_per_file"`
}

// EstimateConfig scales the capacity estimates. The factors are
// validated but not applied anywhere yet.
type EstimateConfig struct {
	RulesScalingFactor ScalingFactor `yaml:"rules_scaling_factor"`
	Tbl8sScalingFactor ScalingFactor `yaml:"tbl8s_scaling_factor"`
}

// ScalingFactor is a positive integer multiplier.
type ScalingFactor int

// UnmarshalYAML accepts an integer or a quoted integer.
func (f *ScalingFactor) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("scaling factor %q: %w", s, err)
	}
	if n <= 0 {
		return errors.New("scaling factor must be positive")
	}
	*f = ScalingFactor(n)
	return nil
}

// LPMConfig names the dataplane tables and the Lua helpers that manage
// them.
type LPMConfig struct {
	// TableFormat is the table name pattern; it may contain {proto} and {kind}.
	TableFormat      string       `yaml:"table_format"`
	ParametersScript Templates    `yaml:"parameters_script"`
	IPv4             LuaFunctions `yaml:"ipv4"`
	IPv6             LuaFunctions `yaml:"ipv6"`
}

// LuaFunctions are the per-family dataplane function names.
type LuaFunctions struct {
	LPMTableConstructor  string `yaml:"lpm_table_constructor"`
	LPMGetParamsFunction string `yaml:"lpm_get_params_function"`
}

// SyslogConfig forwards log records to a remote syslog server.
type SyslogConfig struct {
	Address  string `yaml:"address"`
	Facility string `yaml:"facility"`
	Severity string `yaml:"severity"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read '%s': %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("configuration '%s': %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("deserialize: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Estimate.RulesScalingFactor == 0 {
		c.Estimate.RulesScalingFactor = 1
	}
	if c.Estimate.Tbl8sScalingFactor == 0 {
		c.Estimate.Tbl8sScalingFactor = 1
	}
}

// Validate checks that every required setting is present.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return errors.New("state_dir is required")
	}
	for _, t := range []struct {
		name string
		ChunkedTemplates
	}{
		{"replace", c.Replace},
		{"update", c.Update},
	} {
		if t.Input == "" || t.Output == "" {
			return fmt.Errorf("%s: input and output are required", t.name)
		}
		if t.MaxRangesPerFile <= 0 {
			return fmt.Errorf("%s: max_ranges_per_file must be positive", t.name)
		}
	}
	if c.LPM.TableFormat == "" {
		return errors.New("lpm.table_format is required")
	}
	if c.LPM.ParametersScript.Input == "" || c.LPM.ParametersScript.Output == "" {
		return errors.New("lpm.parameters_script: input and output are required")
	}
	for _, f := range []struct {
		name string
		LuaFunctions
	}{
		{"ipv4", c.LPM.IPv4},
		{"ipv6", c.LPM.IPv6},
	} {
		if f.LPMTableConstructor == "" || f.LPMGetParamsFunction == "" {
			return fmt.Errorf("lpm.%s: lpm_table_constructor and lpm_get_params_function are required", f.name)
		}
	}
	if c.Syslog != nil && c.Syslog.Address == "" {
		return errors.New("syslog.address is required")
	}
	return nil
}
