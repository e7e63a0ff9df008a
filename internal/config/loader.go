package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings of the HRMS server.
type Config struct {
	HTTPPort          int
	SQLitePath        string
	BusyTimeout       time.Duration
	SessionSecret     string
	SessionTTL        time.Duration
	CookieSecure      bool
	Timezone          string
	Location          *time.Location
	UploadDir         string
	MaxUploadBytes    int64
	AnnualLeaveDays   int
	LoginRatePerMin   int
	LoginBurst        int
	ShutdownTimeout   time.Duration
	SessionPruneEvery time.Duration
}

// fileConfig mirrors Config for YAML files. Durations are written as Go duration strings.
type fileConfig struct {
	HTTPPort          *int    `yaml:"http_port"`
	SQLitePath        *string `yaml:"sqlite_path"`
	BusyTimeout       *string `yaml:"busy_timeout"`
	SessionSecret     *string `yaml:"session_secret"`
	SessionTTL        *string `yaml:"session_ttl"`
	CookieSecure      *bool   `yaml:"cookie_secure"`
	Timezone          *string `yaml:"timezone"`
	UploadDir         *string `yaml:"upload_dir"`
	MaxUploadBytes    *int64  `yaml:"max_upload_bytes"`
	AnnualLeaveDays   *int    `yaml:"annual_leave_days"`
	LoginRatePerMin   *int    `yaml:"login_rate_per_minute"`
	LoginBurst        *int    `yaml:"login_burst"`
	ShutdownTimeout   *string `yaml:"shutdown_timeout"`
	SessionPruneEvery *string `yaml:"session_prune_interval"`
}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		HTTPPort:          8080,
		SQLitePath:        "hrms.db",
		BusyTimeout:       5 * time.Second,
		SessionTTL:        24 * time.Hour,
		Timezone:          "Asia/Tokyo",
		UploadDir:         "uploads",
		MaxUploadBytes:    10 << 20,
		AnnualLeaveDays:   20,
		LoginRatePerMin:   10,
		LoginBurst:        5,
		ShutdownTimeout:   10 * time.Second,
		SessionPruneEvery: time.Hour,
	}
}

// Load reads the optional YAML file named by HRMS_CONFIG_FILE and then applies HRMS_*
// environment variables on top.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv("HRMS_CONFIG_FILE")))
}

// LoadFile is Load with an explicit configuration file. An empty path skips the file.
//
// Missing and invalid values are collected and reported together in a single localized
// error.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	p := &parser{cfg: &cfg}

	if path != "" {
		if err := p.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	p.applyEnv()

	if cfg.SessionSecret == "" {
		p.missing = append(p.missing, "HRMS_SESSION_SECRET")
	}
	if cfg.Location == nil && !p.isInvalid("HRMS_TIMEZONE") {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			p.invalid = append(p.invalid, "HRMS_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

type parser struct {
	cfg     *Config
	missing []string
	invalid []string
}

func (p *parser) isInvalid(key string) bool {
	for _, k := range p.invalid {
		if k == key {
			return true
		}
	}
	return false
}

func (p *parser) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("設定ファイルが見つかりません: %s", path)
		}
		return fmt.Errorf("設定ファイルを読み込めません: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("設定ファイルの形式が不正です: %w", err)
	}

	c := p.cfg
	if fc.HTTPPort != nil {
		p.setPort("http_port", strconv.Itoa(*fc.HTTPPort))
	}
	if fc.SQLitePath != nil {
		c.SQLitePath = strings.TrimSpace(*fc.SQLitePath)
	}
	if fc.BusyTimeout != nil {
		p.setDuration("busy_timeout", *fc.BusyTimeout, &c.BusyTimeout)
	}
	if fc.SessionSecret != nil {
		c.SessionSecret = strings.TrimSpace(*fc.SessionSecret)
	}
	if fc.SessionTTL != nil {
		p.setDuration("session_ttl", *fc.SessionTTL, &c.SessionTTL)
	}
	if fc.CookieSecure != nil {
		c.CookieSecure = *fc.CookieSecure
	}
	if fc.Timezone != nil {
		c.Timezone = strings.TrimSpace(*fc.Timezone)
	}
	if fc.UploadDir != nil {
		c.UploadDir = strings.TrimSpace(*fc.UploadDir)
	}
	if fc.MaxUploadBytes != nil {
		p.setInt64("max_upload_bytes", strconv.FormatInt(*fc.MaxUploadBytes, 10), &c.MaxUploadBytes)
	}
	if fc.AnnualLeaveDays != nil {
		p.setInt("annual_leave_days", strconv.Itoa(*fc.AnnualLeaveDays), 0, &c.AnnualLeaveDays)
	}
	if fc.LoginRatePerMin != nil {
		p.setInt("login_rate_per_minute", strconv.Itoa(*fc.LoginRatePerMin), 1, &c.LoginRatePerMin)
	}
	if fc.LoginBurst != nil {
		p.setInt("login_burst", strconv.Itoa(*fc.LoginBurst), 1, &c.LoginBurst)
	}
	if fc.ShutdownTimeout != nil {
		p.setDuration("shutdown_timeout", *fc.ShutdownTimeout, &c.ShutdownTimeout)
	}
	if fc.SessionPruneEvery != nil {
		p.setDuration("session_prune_interval", *fc.SessionPruneEvery, &c.SessionPruneEvery)
	}
	return nil
}

func (p *parser) applyEnv() {
	c := p.cfg
	if v, ok := lookup("HRMS_HTTP_PORT"); ok {
		p.setPort("HRMS_HTTP_PORT", v)
	}
	if v, ok := lookup("HRMS_SQLITE_PATH"); ok {
		c.SQLitePath = v
	}
	if v, ok := lookup("HRMS_BUSY_TIMEOUT"); ok {
		p.setDuration("HRMS_BUSY_TIMEOUT", v, &c.BusyTimeout)
	}
	if v, ok := lookup("HRMS_SESSION_SECRET"); ok {
		c.SessionSecret = v
	}
	if v, ok := lookup("HRMS_SESSION_TTL"); ok {
		p.setDuration("HRMS_SESSION_TTL", v, &c.SessionTTL)
	}
	if v, ok := lookup("HRMS_COOKIE_SECURE"); ok {
		secure, err := strconv.ParseBool(v)
		if err != nil {
			p.invalid = append(p.invalid, "HRMS_COOKIE_SECURE")
		} else {
			c.CookieSecure = secure
		}
	}
	if v, ok := lookup("HRMS_TIMEZONE"); ok {
		loc, err := time.LoadLocation(v)
		if err != nil {
			p.invalid = append(p.invalid, "HRMS_TIMEZONE")
		} else {
			c.Timezone = v
			c.Location = loc
		}
	}
	if v, ok := lookup("HRMS_UPLOAD_DIR"); ok {
		c.UploadDir = v
	}
	if v, ok := lookup("HRMS_MAX_UPLOAD_BYTES"); ok {
		p.setInt64("HRMS_MAX_UPLOAD_BYTES", v, &c.MaxUploadBytes)
	}
	if v, ok := lookup("HRMS_ANNUAL_LEAVE_DAYS"); ok {
		p.setInt("HRMS_ANNUAL_LEAVE_DAYS", v, 0, &c.AnnualLeaveDays)
	}
	if v, ok := lookup("HRMS_LOGIN_RATE_PER_MINUTE"); ok {
		p.setInt("HRMS_LOGIN_RATE_PER_MINUTE", v, 1, &c.LoginRatePerMin)
	}
	if v, ok := lookup("HRMS_LOGIN_BURST"); ok {
		p.setInt("HRMS_LOGIN_BURST", v, 1, &c.LoginBurst)
	}
	if v, ok := lookup("HRMS_SHUTDOWN_TIMEOUT"); ok {
		p.setDuration("HRMS_SHUTDOWN_TIMEOUT", v, &c.ShutdownTimeout)
	}
	if v, ok := lookup("HRMS_SESSION_PRUNE_INTERVAL"); ok {
		p.setDuration("HRMS_SESSION_PRUNE_INTERVAL", v, &c.SessionPruneEvery)
	}
}

func (p *parser) setPort(key, value string) {
	port, err := strconv.Atoi(value)
	if err != nil || port <= 0 || port > 65535 {
		p.invalid = append(p.invalid, key)
		return
	}
	p.cfg.HTTPPort = port
}

func (p *parser) setDuration(key, value string, dst *time.Duration) {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = d
}

func (p *parser) setInt(key, value string, minimum int, dst *int) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < minimum {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = n
}

func (p *parser) setInt64(key, value string, dst *int64) {
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || n <= 0 {
		p.invalid = append(p.invalid, key)
		return
	}
	*dst = n
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}
