package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Vision      VisionConfig      `yaml:"vision"`
	Matching    MatchingConfig    `yaml:"matching"`
	Liveness    LivenessConfig    `yaml:"liveness"`
	Adaptive    AdaptiveConfig    `yaml:"adaptive"`
	Attendance  AttendanceConfig  `yaml:"attendance"`
	Capture     CaptureConfig     `yaml:"capture"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Retention   RetentionConfig   `yaml:"retention"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	APIKey          string   `yaml:"api_key"`
	TrustedNetworks []string `yaml:"trusted_networks"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig configures the event bus. An empty URL disables it.
type NATSConfig struct {
	URL string `yaml:"url"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	ONNXLibPath        string  `yaml:"onnx_lib_path"`
}

// Tier maps a liveness floor to a similarity cutoff. A tier applies when
// liveness is strictly above MinLiveness.
type Tier struct {
	MinLiveness float64 `yaml:"min_liveness"`
	Cutoff      float64 `yaml:"cutoff"`
}

type MatchingConfig struct {
	MinFaceSize int     `yaml:"min_face_size"`
	CenterZone  float64 `yaml:"center_zone"`
	Tiers       []Tier  `yaml:"tiers"`
}

type LivenessConfig struct {
	Spectral        bool    `yaml:"spectral"`
	SharpnessWeight float64 `yaml:"sharpness_weight"`
	ColourWeight    float64 `yaml:"colour_weight"`
	SpectralWeight  float64 `yaml:"spectral_weight"`
	SharpnessScale  float64 `yaml:"sharpness_scale"`
	ColourScale     float64 `yaml:"colour_scale"`
	AnalysisSize    int     `yaml:"analysis_size"`
}

type AdaptiveConfig struct {
	Disabled      bool          `yaml:"disabled"`
	MinConfidence float64       `yaml:"min_confidence"`
	MinLiveness   float64       `yaml:"min_liveness"`
	ResetBelow    float64       `yaml:"reset_below"`
	StableCount   int           `yaml:"stable_count"`
	Interval      time.Duration `yaml:"interval"`
	Alpha         float64       `yaml:"alpha"`
}

type AttendanceConfig struct {
	EntryStart         string        `yaml:"entry_start"`
	EntryEnd           string        `yaml:"entry_end"`
	ExitStart          string        `yaml:"exit_start"`
	ExitEnd            string        `yaml:"exit_end"`
	Cooldown           time.Duration `yaml:"cooldown"`
	Debounce           time.Duration `yaml:"debounce"`
	FlexibleExit       *bool         `yaml:"flexible_exit"`
	Timezone           string        `yaml:"timezone"`
	MinimumWorkMinutes int           `yaml:"minimum_work_minutes"`
}

// FlexibleExitEnabled reports whether EXIT may be logged without a prior ENTRY.
func (a AttendanceConfig) FlexibleExitEnabled() bool {
	return a.FlexibleExit == nil || *a.FlexibleExit
}

// Location resolves the configured timezone, defaulting to the host zone.
func (a AttendanceConfig) Location() (*time.Location, error) {
	if a.Timezone == "" || a.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(a.Timezone)
}

type CaptureConfig struct {
	FPS            int           `yaml:"fps"`
	PreviewWidth   int           `yaml:"preview_width"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	StopTimeout    time.Duration `yaml:"stop_timeout"`
}

type RecognitionConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	LogMinConfidence float64       `yaml:"log_min_confidence"`
}

type RetentionConfig struct {
	Schedule string `yaml:"schedule"`
	Days     int    `yaml:"days"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies overrides and defaults, and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = "attendance"
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Matching.MinFaceSize == 0 {
		cfg.Matching.MinFaceSize = 80
	}
	if cfg.Matching.CenterZone == 0 {
		cfg.Matching.CenterZone = 0.5
	}
	if len(cfg.Matching.Tiers) == 0 {
		cfg.Matching.Tiers = []Tier{
			{MinLiveness: 0.7, Cutoff: 0.83},
			{MinLiveness: 0.5, Cutoff: 0.85},
			{MinLiveness: 0, Cutoff: 0.88},
		}
	}

	l := &cfg.Liveness
	if l.SharpnessWeight == 0 && l.ColourWeight == 0 && l.SpectralWeight == 0 {
		if l.Spectral {
			l.SharpnessWeight, l.ColourWeight, l.SpectralWeight = 0.4, 0.3, 0.3
		} else {
			l.SharpnessWeight, l.ColourWeight = 0.7, 0.3
		}
	}
	if l.SharpnessScale == 0 {
		l.SharpnessScale = 200
	}
	if l.ColourScale == 0 {
		l.ColourScale = 50
	}
	if l.AnalysisSize == 0 {
		l.AnalysisSize = 128
	}

	a := &cfg.Adaptive
	if a.MinConfidence == 0 {
		a.MinConfidence = 0.90
	}
	if a.MinLiveness == 0 {
		a.MinLiveness = 0.80
	}
	if a.ResetBelow == 0 {
		a.ResetBelow = 0.85
	}
	if a.StableCount == 0 {
		a.StableCount = 3
	}
	if a.Interval == 0 {
		a.Interval = 24 * time.Hour
	}
	if a.Alpha == 0 {
		a.Alpha = 0.1
	}

	at := &cfg.Attendance
	if at.EntryStart == "" {
		at.EntryStart = "03:00"
	}
	if at.EntryEnd == "" {
		at.EntryEnd = "13:30"
	}
	if at.ExitStart == "" {
		at.ExitStart = "12:00"
	}
	if at.ExitEnd == "" {
		at.ExitEnd = "23:59"
	}
	if at.Cooldown == 0 {
		at.Cooldown = 4 * time.Hour
	}
	if at.Debounce == 0 {
		at.Debounce = 5 * time.Second
	}
	if at.MinimumWorkMinutes == 0 {
		at.MinimumWorkMinutes = 300
	}

	if cfg.Capture.FPS == 0 {
		cfg.Capture.FPS = 15
	}
	if cfg.Capture.PreviewWidth == 0 {
		cfg.Capture.PreviewWidth = 640
	}
	if cfg.Capture.ReconnectDelay == 0 {
		cfg.Capture.ReconnectDelay = 2 * time.Second
	}
	if cfg.Capture.StopTimeout == 0 {
		cfg.Capture.StopTimeout = 3 * time.Second
	}
	if cfg.Recognition.PollInterval == 0 {
		cfg.Recognition.PollInterval = 400 * time.Millisecond
	}
	if cfg.Recognition.LogMinConfidence == 0 {
		cfg.Recognition.LogMinConfidence = 0.85
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "0 3 * * *"
	}
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = 180
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	var errs []error

	prev := Tier{MinLiveness: math.Inf(1), Cutoff: math.Inf(-1)}
	for i, t := range c.Matching.Tiers {
		if t.MinLiveness >= prev.MinLiveness {
			errs = append(errs, fmt.Errorf("matching.tiers[%d]: min_liveness must be strictly decreasing", i))
		}
		if t.Cutoff < prev.Cutoff {
			errs = append(errs, fmt.Errorf("matching.tiers[%d]: cutoff must not decrease as liveness decreases", i))
		}
		if t.Cutoff <= 0 || t.Cutoff > 1 {
			errs = append(errs, fmt.Errorf("matching.tiers[%d]: cutoff %.3f out of range (0,1]", i, t.Cutoff))
		}
		prev = t
	}
	if c.Matching.CenterZone <= 0 || c.Matching.CenterZone > 1 {
		errs = append(errs, fmt.Errorf("matching.center_zone %.2f out of range (0,1]", c.Matching.CenterZone))
	}

	l := c.Liveness
	if l.SharpnessWeight < 0 || l.ColourWeight < 0 || l.SpectralWeight < 0 {
		errs = append(errs, errors.New("liveness weights must be non-negative"))
	}
	if sum := l.SharpnessWeight + l.ColourWeight + l.SpectralWeight; math.Abs(sum-1) > 1e-6 {
		errs = append(errs, fmt.Errorf("liveness weights sum to %.3f, want 1", sum))
	}
	if !l.Spectral && l.SpectralWeight != 0 {
		errs = append(errs, errors.New("liveness.spectral_weight set while spectral is disabled"))
	}

	if c.Adaptive.StableCount < 1 {
		errs = append(errs, errors.New("adaptive.stable_count must be at least 1"))
	}
	if c.Adaptive.Alpha <= 0 || c.Adaptive.Alpha >= 1 {
		errs = append(errs, fmt.Errorf("adaptive.alpha %.3f out of range (0,1)", c.Adaptive.Alpha))
	}

	for name, v := range map[string]string{
		"entry_start": c.Attendance.EntryStart,
		"entry_end":   c.Attendance.EntryEnd,
		"exit_start":  c.Attendance.ExitStart,
		"exit_end":    c.Attendance.ExitEnd,
	} {
		if _, err := ParseClock(v); err != nil {
			errs = append(errs, fmt.Errorf("attendance.%s: %w", name, err))
		}
	}
	if _, err := c.Attendance.Location(); err != nil {
		errs = append(errs, fmt.Errorf("attendance.timezone: %w", err))
	}

	return errors.Join(errs...)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("invalid clock %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ATT_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ATT_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("ATT_TRUSTED_NETWORKS"); v != "" {
		cfg.Server.TrustedNetworks = strings.Split(v, ",")
	}
	if v := os.Getenv("ATT_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("ATT_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("ATT_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("ATT_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("ATT_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("ATT_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("ATT_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("ATT_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("ATT_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("ATT_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("ATT_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("ATT_ONNX_LIB"); v != "" {
		cfg.Vision.ONNXLibPath = v
	}
	if v := os.Getenv("ATT_TIMEZONE"); v != "" {
		cfg.Attendance.Timezone = v
	}
	if v := os.Getenv("ATT_FLEXIBLE_EXIT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Attendance.FlexibleExit = &b
		}
	}
	if v := os.Getenv("ATT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
