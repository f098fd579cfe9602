package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `
state_dir: /var/lib/gtctl
replace:
  input: /etc/gtctl/replace.lua.tpl
  output: /var/lib/gtctl/replace_{proto}_{kind}_{i}.lua
  max_ranges_per_file: 1500
update:
  input: /etc/gtctl/update.lua.tpl
  output: /var/lib/gtctl/update_{proto}_{kind}_{i}.lua
  max_ranges_per_file: 1500
lpm:
  table_format: "{proto}_{kind}_lpm"
  parameters_script:
    input: /etc/gtctl/lpm_params.lua.tpl
    output: /var/lib/gtctl/lpm_params_{proto}_{kind}.lua
  ipv4:
    lpm_table_constructor: new_lpm
    lpm_get_params_function: lpm_get_paras
  ipv6:
    lpm_table_constructor: new_lpm6
    lpm_get_params_function: lpm6_get_paras
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Socket != DefaultSocket {
		t.Errorf("Socket = %q", cfg.Socket)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Estimate.RulesScalingFactor != 1 || cfg.Estimate.Tbl8sScalingFactor != 1 {
		t.Errorf("Estimate = %+v", cfg.Estimate)
	}
	if cfg.RemoveRenderedScripts {
		t.Error("RemoveRenderedScripts should default to false")
	}
	if cfg.Replace.Input != "/etc/gtctl/replace.lua.tpl" || cfg.Replace.MaxRangesPerFile != 1500 {
		t.Errorf("Replace = %+v", cfg.Replace)
	}
	if cfg.LPM.IPv6.LPMTableConstructor != "new_lpm6" {
		t.Errorf("LPM.IPv6 = %+v", cfg.LPM.IPv6)
	}
}

func TestParseOverrides(t *testing.T) {
	data := sample + `
socket: /tmp/dyn.sock
log_level: debug
remove_rendered_scripts: true
metrics_textfile: /var/lib/node_exporter/gtctl.prom
estimate:
  rules_scaling_factor: "2"
  tbl8s_scaling_factor: 3
syslog:
  address: 127.0.0.1:514
  facility: local3
  severity: warning
`
	cfg, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Socket != "/tmp/dyn.sock" || cfg.LogLevel != "debug" || !cfg.RemoveRenderedScripts {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Estimate.RulesScalingFactor != 2 || cfg.Estimate.Tbl8sScalingFactor != 3 {
		t.Errorf("Estimate = %+v", cfg.Estimate)
	}
	if cfg.Syslog == nil || cfg.Syslog.Facility != "local3" {
		t.Errorf("Syslog = %+v", cfg.Syslog)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"zero scaling factor", sample + "estimate:\n  rules_scaling_factor: 0\n", "positive"},
		{"bad scaling factor", sample + "estimate:\n  tbl8s_scaling_factor: many\n", "scaling factor"},
		{"unknown field", sample + "bogus: 1\n", "bogus"},
		{"missing state dir", strings.Replace(sample, "state_dir: /var/lib/gtctl", "", 1), "state_dir"},
		{"missing table format", strings.Replace(sample, `table_format: "{proto}_{kind}_lpm"`, "", 1), "table_format"},
		{"zero max ranges", strings.Replace(sample, "max_ranges_per_file: 1500", "max_ranges_per_file: 0", 1), "max_ranges_per_file"},
		{"missing lua function", strings.Replace(sample, "lpm_get_params_function: lpm6_get_paras", "", 1), "ipv6"},
		{"syslog without address", sample + "syslog:\n  facility: local0\n", "syslog.address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidateReportsFirstSectionInOrder(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"both templates", strings.ReplaceAll(sample, "max_ranges_per_file: 1500", "max_ranges_per_file: 0"), "replace: "},
		{"both families", strings.NewReplacer(
			"lpm_get_params_function: lpm_get_paras", "",
			"lpm_get_params_function: lpm6_get_paras", "",
		).Replace(sample), "lpm.ipv4: "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				_, err := Parse([]byte(tt.data))
				if err == nil || !strings.HasPrefix(err.Error(), tt.want) {
					t.Fatalf("run %d: error %v, want prefix %q", i, err, tt.want)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gtctl.conf")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}
