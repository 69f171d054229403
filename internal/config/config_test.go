package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "options-analytics/internal/errors"
)

func TestLoadCreatesTemplateAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("fresh load = %+v, want defaults", cfg)
	}
	if _, err := os.Stat(filepath.Join(dir, "options.toml")); err != nil {
		t.Errorf("template not written: %v", err)
	}

	// the generated template must load back to the same values
	again, err := Load(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if *again != *Default() {
		t.Errorf("template load = %+v, want defaults", again)
	}
}

func TestLoadReadsFile(t *testing.T) {
	dir := t.TempDir()
	content := `
[pricing]
risk_free_rate = 0.03
volatility = 0.4

[chain]
strike_increment = 2.5
parallel = true

[server]
request_timeout = "3s"
`
	if err := os.WriteFile(filepath.Join(dir, "options.toml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.RiskFreeRate != 0.03 || cfg.Pricing.Volatility != 0.4 {
		t.Errorf("pricing = %+v", cfg.Pricing)
	}
	if cfg.Chain.StrikeIncrement != 2.5 || !cfg.Chain.Parallel {
		t.Errorf("chain = %+v", cfg.Chain)
	}
	if cfg.Chain.StrikesEachSide != 20 {
		t.Errorf("unset key lost its default: %d", cfg.Chain.StrikesEachSide)
	}
	if cfg.Server.RequestTimeout != 3*time.Second {
		t.Errorf("request_timeout = %v", cfg.Server.RequestTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OPTIONS_RISK_FREE_RATE", "0.01")
	t.Setenv("OPTIONS_SERVER_ADDR", "127.0.0.1:9999")
	t.Setenv("OPTIONS_VOLATILITY", "not-a-number")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pricing.RiskFreeRate != 0.01 {
		t.Errorf("rate = %v", cfg.Pricing.RiskFreeRate)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Pricing.Volatility != 0.25 {
		t.Errorf("unparseable override should be ignored, got %v", cfg.Pricing.Volatility)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero volatility", func(c *Config) { c.Pricing.Volatility = 0 }},
		{"zero min tick", func(c *Config) { c.Pricing.MinTick = 0 }},
		{"negative min tick", func(c *Config) { c.Pricing.MinTick = -0.01 }},
		{"inverted iv bounds", func(c *Config) { c.ImpliedVolatility.MaxVolatility = 1e-7 }},
		{"no iterations", func(c *Config) { c.ImpliedVolatility.MaxIterations = 0 }},
		{"zero increment", func(c *Config) { c.Chain.StrikeIncrement = 0 }},
		{"spread too wide", func(c *Config) { c.Chain.SpreadPercent = 1 }},
		{"bad weekday", func(c *Config) { c.Chain.ExpiryWeekday = "someday" }},
		{"tiny grid", func(c *Config) { c.Strategy.GridPoints = 2 }},
		{"grid below spot", func(c *Config) { c.Strategy.UpperMultiple = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !apperrors.Is(err, apperrors.ErrConfigInvalid) {
				t.Errorf("Validate() = %v, want ErrConfigInvalid", err)
			}
		})
	}

	if err := Default().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestParseWeekday(t *testing.T) {
	for in, want := range map[string]time.Weekday{"friday": time.Friday, " Monday ": time.Monday, "SUNDAY": time.Sunday} {
		got, err := ParseWeekday(in)
		if err != nil || got != want {
			t.Errorf("ParseWeekday(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseWeekday("fri"); err == nil {
		t.Error("expected error for abbreviation")
	}
}
