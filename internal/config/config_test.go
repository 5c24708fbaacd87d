package config

import (
	"strings"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Attendance.Cooldown != 4*time.Hour {
		t.Errorf("cooldown = %v, want 4h", cfg.Attendance.Cooldown)
	}
	if cfg.Attendance.Debounce != 5*time.Second {
		t.Errorf("debounce = %v, want 5s", cfg.Attendance.Debounce)
	}
	if !cfg.Attendance.FlexibleExitEnabled() {
		t.Error("flexible exit should default to enabled")
	}
	if cfg.Recognition.PollInterval != 400*time.Millisecond {
		t.Errorf("poll interval = %v, want 400ms", cfg.Recognition.PollInterval)
	}
	if len(cfg.Matching.Tiers) != 3 {
		t.Fatalf("tiers = %d, want 3", len(cfg.Matching.Tiers))
	}
	if cfg.Liveness.SharpnessWeight != 0.7 || cfg.Liveness.ColourWeight != 0.3 {
		t.Errorf("liveness weights = %v/%v, want 0.7/0.3", cfg.Liveness.SharpnessWeight, cfg.Liveness.ColourWeight)
	}
	if cfg.Retention.Days != 180 {
		t.Errorf("retention days = %d, want 180", cfg.Retention.Days)
	}
}

func TestParseSpectralDefaults(t *testing.T) {
	cfg, err := Parse([]byte("liveness:\n  spectral: true\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	l := cfg.Liveness
	if l.SharpnessWeight != 0.4 || l.ColourWeight != 0.3 || l.SpectralWeight != 0.3 {
		t.Errorf("weights = %v/%v/%v, want 0.4/0.3/0.3", l.SharpnessWeight, l.ColourWeight, l.SpectralWeight)
	}
}

func TestParseFlexibleExitOff(t *testing.T) {
	cfg, err := Parse([]byte("attendance:\n  flexible_exit: false\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Attendance.FlexibleExitEnabled() {
		t.Error("flexible exit should be disabled")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "cutoff rises with liveness",
			yaml: `
matching:
  tiers:
    - {min_liveness: 0.7, cutoff: 0.90}
    - {min_liveness: 0.0, cutoff: 0.85}
`,
			wantErr: "cutoff must not decrease",
		},
		{
			name: "tiers out of order",
			yaml: `
matching:
  tiers:
    - {min_liveness: 0.5, cutoff: 0.83}
    - {min_liveness: 0.7, cutoff: 0.85}
`,
			wantErr: "strictly decreasing",
		},
		{
			name: "weights do not sum to one",
			yaml: `
liveness:
  sharpness_weight: 0.5
  colour_weight: 0.3
`,
			wantErr: "sum to",
		},
		{
			name: "bad window",
			yaml: `
attendance:
  entry_start: "25:00"
`,
			wantErr: "entry_start",
		},
		{
			name: "unknown timezone",
			yaml: `
attendance:
  timezone: "Mars/Olympus"
`,
			wantErr: "timezone",
		},
		{
			name: "valid custom tiers",
			yaml: `
matching:
  tiers:
    - {min_liveness: 0.8, cutoff: 0.80}
    - {min_liveness: 0.6, cutoff: 0.84}
    - {min_liveness: 0.3, cutoff: 0.86}
    - {min_liveness: 0.0, cutoff: 0.90}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Parse() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Parse() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"03:00", 180, false},
		{"13:30", 810, false},
		{"23:59", 1439, false},
		{"00:00", 0, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"1200", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseClock(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseClock(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ATT_DB_HOST", "db.internal")
	t.Setenv("ATT_FLEXIBLE_EXIT", "false")
	t.Setenv("ATT_TRUSTED_NETWORKS", "10.0.0.0/8,192.168.0.0/16")

	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Database.Host != "db.internal" {
		t.Errorf("db host = %q", cfg.Database.Host)
	}
	if cfg.Attendance.FlexibleExitEnabled() {
		t.Error("ATT_FLEXIBLE_EXIT=false not applied")
	}
	if len(cfg.Server.TrustedNetworks) != 2 {
		t.Errorf("trusted networks = %v", cfg.Server.TrustedNetworks)
	}
}
