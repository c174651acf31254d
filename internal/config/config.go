// Package config loads kiosk settings from flags, LOCKER_* environment
// variables and an optional config file, and watches the file for edits.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "LOCKER"
	DefaultConfigFile = "config.json"

	KeyConfig          = "config"
	KeyBaseURL         = "base_url"
	KeyToken           = "token"
	KeyZoneID          = "zone_id"
	KeyServerPort      = "server_port"
	KeyLockers         = "lockers"
	KeyActuatorTimeout = "actuator_timeout"
	KeyOpenGrace       = "open_grace"
	KeyBulkDelay       = "bulk_delay"
	KeyDataFile        = "data_file"
	KeyStore           = "store"
	KeyDBDSN           = "db_dsn"
	KeyMigrationsDir   = "migrations_dir"
	KeyAuditDB         = "audit_db"
	KeyAdminToken      = "admin_token"
	KeyLogLevel        = "log_level"
	KeyCORSOrigin      = "cors_origin"
)

const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	BaseURL         string
	Token           string
	ZoneID          int
	ServerPort      int
	Lockers         int
	ActuatorTimeout time.Duration
	OpenGrace       time.Duration
	BulkDelay       time.Duration
	DataFile        string
	Store           string
	DBDSN           string
	MigrationsDir   string
	AuditDB         string
	AdminToken      string
	LogLevel        string
	CORSOrigin      string
}

// Settings is the operator-editable subset persisted back to the config file.
type Settings struct {
	BaseURL    string `json:"base_url"`
	Token      string `json:"token"`
	ZoneID     int    `json:"zone_id"`
	ServerPort int    `json:"server_port"`
}

func (c Config) Settings() Settings {
	return Settings{BaseURL: c.BaseURL, Token: c.Token, ZoneID: c.ZoneID, ServerPort: c.ServerPort}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

func defaults() map[string]any {
	return map[string]any{
		KeyBaseURL:         "http://192.168.100.127:9777/api/v1",
		KeyToken:           "",
		KeyZoneID:          1,
		KeyServerPort:      5000,
		KeyLockers:         16,
		KeyActuatorTimeout: 3 * time.Second,
		KeyOpenGrace:       5 * time.Second,
		KeyBulkDelay:       300 * time.Millisecond,
		KeyDataFile:        "locker_assignments.json",
		KeyStore:           StoreFile,
		KeyDBDSN:           "",
		KeyMigrationsDir:   "",
		KeyAuditDB:         "locker_audit.db",
		KeyAdminToken:      "",
		KeyLogLevel:        "info",
		KeyCORSOrigin:      "*",
	}
}

// RegisterFlags declares every option on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	d := defaults()
	fs.String(KeyConfig, DefaultConfigFile, "config file (json, yaml or toml); missing default file is ignored")
	fs.String(KeyBaseURL, d[KeyBaseURL].(string), "lock controller API base URL")
	fs.String(KeyToken, "", "lock controller bearer token")
	fs.Int(KeyZoneID, d[KeyZoneID].(int), "lock controller zone id")
	fs.Int(KeyServerPort, d[KeyServerPort].(int), "HTTP listen port")
	fs.Int(KeyLockers, d[KeyLockers].(int), "number of lockers in the bank")
	fs.Duration(KeyActuatorTimeout, d[KeyActuatorTimeout].(time.Duration), "lock controller request timeout")
	fs.Duration(KeyOpenGrace, d[KeyOpenGrace].(time.Duration), "how long an opened locker shows as open")
	fs.Duration(KeyBulkDelay, d[KeyBulkDelay].(time.Duration), "spacing between open-all commands")
	fs.String(KeyDataFile, d[KeyDataFile].(string), "assignment snapshot file (store=file)")
	fs.String(KeyStore, StoreFile, "assignment store backend: file or postgres")
	fs.String(KeyDBDSN, "", "postgres DSN (store=postgres)")
	fs.String(KeyMigrationsDir, "", "SQL migrations directory overriding the bundled ones (store=postgres)")
	fs.String(KeyAuditDB, d[KeyAuditDB].(string), "SQLite audit log path; empty disables the durable log")
	fs.String(KeyAdminToken, "", "require this X-Admin-Token on admin routes")
	fs.String(KeyLogLevel, d[KeyLogLevel].(string), "log level: trace, debug, info, warn, error")
	fs.String(KeyCORSOrigin, d[KeyCORSOrigin].(string), "Access-Control-Allow-Origin for the kiosk UI")
}

type Loader struct {
	v        *viper.Viper
	mu       sync.Mutex
	explicit bool
	path     string
}

// NewLoader binds fs (may be nil) and the environment into a fresh viper
// instance.
func NewLoader(fs *pflag.FlagSet) (*Loader, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}
	v.SetDefault(KeyConfig, DefaultConfigFile)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	l := &Loader{v: v}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
		if f := fs.Lookup(KeyConfig); f != nil && f.Changed {
			l.explicit = true
		}
	}
	if os.Getenv(EnvPrefix+"_CONFIG") != "" {
		l.explicit = true
	}
	return l, nil
}

// Load reads the config file when present and returns the merged settings.
func (l *Loader) Load() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	path := strings.TrimSpace(l.v.GetString(KeyConfig))
	if path != "" {
		info, err := os.Stat(path)
		switch {
		case err == nil && info.IsDir():
			return Config{}, fmt.Errorf("%w: config file %q is a directory", ErrInvalidConfig, path)
		case err == nil:
			l.v.SetConfigFile(path)
			if err := l.v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("read config file %q: %w", path, err)
			}
			l.path = path
		case os.IsNotExist(err) && !l.explicit:
			hlog.Infof("config file %s not found, using defaults", path)
		default:
			return Config{}, fmt.Errorf("config file %q: %w", path, err)
		}
	}
	return l.decode()
}

// Path returns the config file in use, empty when running on defaults.
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// Current re-reads the merged settings without touching the file.
func (l *Loader) Current() (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decode()
}

func (l *Loader) decode() (Config, error) {
	cfg := Config{
		BaseURL:         strings.TrimSpace(l.v.GetString(KeyBaseURL)),
		Token:           strings.TrimSpace(l.v.GetString(KeyToken)),
		ZoneID:          l.v.GetInt(KeyZoneID),
		ServerPort:      l.v.GetInt(KeyServerPort),
		Lockers:         l.v.GetInt(KeyLockers),
		ActuatorTimeout: l.v.GetDuration(KeyActuatorTimeout),
		OpenGrace:       l.v.GetDuration(KeyOpenGrace),
		BulkDelay:       l.v.GetDuration(KeyBulkDelay),
		DataFile:        strings.TrimSpace(l.v.GetString(KeyDataFile)),
		Store:           strings.ToLower(strings.TrimSpace(l.v.GetString(KeyStore))),
		DBDSN:           strings.TrimSpace(l.v.GetString(KeyDBDSN)),
		MigrationsDir:   strings.TrimSpace(l.v.GetString(KeyMigrationsDir)),
		AuditDB:         strings.TrimSpace(l.v.GetString(KeyAuditDB)),
		AdminToken:      strings.TrimSpace(l.v.GetString(KeyAdminToken)),
		LogLevel:        strings.ToLower(strings.TrimSpace(l.v.GetString(KeyLogLevel))),
		CORSOrigin:      strings.TrimSpace(l.v.GetString(KeyCORSOrigin)),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: %s is required", ErrInvalidConfig, KeyBaseURL)
	case c.ServerPort <= 0 || c.ServerPort > 65535:
		return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, KeyServerPort, c.ServerPort)
	case c.Lockers <= 0:
		return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeyLockers)
	case c.ActuatorTimeout <= 0, c.OpenGrace <= 0, c.BulkDelay <= 0:
		return fmt.Errorf("%w: durations must be positive", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreFile:
		if c.DataFile == "" {
			return fmt.Errorf("%w: %s is required for store=file", ErrInvalidConfig, KeyDataFile)
		}
	case StorePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("%w: %s is required for store=postgres", ErrInvalidConfig, KeyDBDSN)
		}
	default:
		return fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, KeyStore, c.Store)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Watch calls fn with the re-read config after each write to the config
// file. Invalid edits are logged and skipped. No-op without a file.
func (l *Loader) Watch(fn func(Config)) {
	if l.Path() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		if err != nil {
			hlog.Warnf("config reload from %s rejected: %v", e.Name, err)
			return
		}
		hlog.Infof("config reloaded from %s", e.Name)
		fn(cfg)
	})
	l.v.WatchConfig()
}

// SaveSettings writes s into the config file, creating it at the default
// path when none was loaded. Flags and environment still take precedence
// over the file on the next read.
func (l *Loader) SaveSettings(s Settings) (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cfg, err := l.decode()
	if err != nil {
		return Config{}, err
	}
	cfg.BaseURL = strings.TrimSpace(s.BaseURL)
	cfg.Token = strings.TrimSpace(s.Token)
	cfg.ZoneID = s.ZoneID
	cfg.ServerPort = s.ServerPort
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	path := l.path
	if path == "" {
		path = strings.TrimSpace(l.v.GetString(KeyConfig))
		if path == "" {
			path = DefaultConfigFile
		}
	}
	file := viper.New()
	file.SetConfigFile(path)
	if _, err := os.Stat(path); err == nil {
		if err := file.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", path, err)
		}
	}
	file.Set(KeyBaseURL, cfg.BaseURL)
	file.Set(KeyToken, cfg.Token)
	file.Set(KeyZoneID, cfg.ZoneID)
	file.Set(KeyServerPort, cfg.ServerPort)
	if err := file.WriteConfigAs(path); err != nil {
		return Config{}, fmt.Errorf("write config file %q: %w", path, err)
	}

	l.v.SetConfigFile(path)
	if err := l.v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reread config file %q: %w", path, err)
	}
	l.path = path
	return l.decode()
}

func ParseLevel(s string) (hlog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return hlog.LevelTrace, nil
	case "debug":
		return hlog.LevelDebug, nil
	case "", "info":
		return hlog.LevelInfo, nil
	case "notice":
		return hlog.LevelNotice, nil
	case "warn", "warning":
		return hlog.LevelWarn, nil
	case "error":
		return hlog.LevelError, nil
	case "fatal":
		return hlog.LevelFatal, nil
	default:
		return hlog.LevelInfo, fmt.Errorf("%w: unknown %s %q", ErrInvalidConfig, KeyLogLevel, s)
	}
}
