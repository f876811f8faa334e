package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/xaenox/labelbot/internal/drift"
	"github.com/xaenox/labelbot/internal/pattern"
	"github.com/xaenox/labelbot/internal/remote"
)

// Engine names as they appear under the engines key.
const (
	EngineActivity = "activity"
	EngineValue    = "value"
	EngineEnergy   = "energy"
)

var engineNames = []string{EngineActivity, EngineValue, EngineEnergy}

type Config struct {
	Log        LogConfig               `mapstructure:"log"`
	Telegram   TelegramConfig          `mapstructure:"telegram"`
	Storage    StorageConfig           `mapstructure:"storage"`
	Remote     RemoteConfig            `mapstructure:"remote"`
	Normalizer NormalizerConfig        `mapstructure:"normalizer"`
	Drift      DriftConfig             `mapstructure:"drift"`
	Engines    map[string]EngineConfig `mapstructure:"engines"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type StorageConfig struct {
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type RemoteConfig struct {
	Driver    string         `mapstructure:"driver"`
	UserID    string         `mapstructure:"user_id"`
	Postgres  DatabaseConfig `mapstructure:"postgres"`
	Redis     RedisConfig    `mapstructure:"redis"`
	QueueSize int            `mapstructure:"queue_size"`
	Workers   int            `mapstructure:"workers"`
	Breaker   BreakerConfig  `mapstructure:"breaker"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type BreakerConfig struct {
	MaxRequests         uint32        `mapstructure:"max_requests"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
}

type NormalizerConfig struct {
	StoplistPath string `mapstructure:"stoplist_path"`
}

type DriftConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	PruneSchedule string        `mapstructure:"prune_schedule"`
}

type EngineConfig struct {
	SuggestThreshold   float64  `mapstructure:"suggest_threshold"`
	AutoApplyThreshold float64  `mapstructure:"auto_apply_threshold"`
	InitialConfidence  float64  `mapstructure:"initial_confidence"`
	ConfidenceStep     float64  `mapstructure:"confidence_step"`
	Stoplist           []string `mapstructure:"stoplist"`
	Drift              bool     `mapstructure:"drift"`
}

// Thresholds converts the engine's scoring settings.
func (ec EngineConfig) Thresholds() pattern.Thresholds {
	return pattern.Thresholds{
		Suggest:   ec.SuggestThreshold,
		AutoApply: ec.AutoApplyThreshold,
		Initial:   ec.InitialConfidence,
		Step:      ec.ConfidenceStep,
	}
}

// Breaker converts the circuit breaker settings.
func (b BreakerConfig) Breaker() remote.BreakerConfig {
	return remote.BreakerConfig{
		MaxRequests:         b.MaxRequests,
		Interval:            b.Interval,
		Timeout:             b.Timeout,
		ConsecutiveFailures: b.ConsecutiveFailures,
	}
}

// Database converts the postgres settings.
func (d DatabaseConfig) Database() remote.DatabaseConfig {
	return remote.DatabaseConfig{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		DBName:   d.DBName,
		SSLMode:  d.SSLMode,
	}
}

// stoplistFile is the layout of the optional shared stoplist file.
type stoplistFile struct {
	Prefixes []string `yaml:"prefixes"`
}

// LoadStoplist reads extra prefix tokens from a YAML file.
func LoadStoplist(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stoplist %s: %w", path, err)
	}
	var f stoplistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse stoplist %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Prefixes))
	for _, p := range f.Prefixes {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.sqlite_path", "labelbot.db")
	v.SetDefault("remote.driver", "none")
	v.SetDefault("remote.user_id", "default")
	v.SetDefault("remote.postgres.host", "localhost")
	v.SetDefault("remote.postgres.port", 5432)
	v.SetDefault("remote.postgres.user", "postgres")
	v.SetDefault("remote.postgres.sslmode", "disable")
	v.SetDefault("remote.redis.url", "redis://localhost:6379/0")
	v.SetDefault("remote.queue_size", 256)
	v.SetDefault("remote.workers", 2)
	v.SetDefault("remote.breaker.max_requests", 3)
	v.SetDefault("remote.breaker.interval", "60s")
	v.SetDefault("remote.breaker.timeout", "30s")
	v.SetDefault("remote.breaker.consecutive_failures", 5)
	v.SetDefault("drift.ttl", "168h")
	v.SetDefault("drift.prune_schedule", "0 * * * *")

	for _, name := range engineNames {
		prefix := "engines." + name + "."
		v.SetDefault(prefix+"suggest_threshold", 0.3)
		v.SetDefault(prefix+"auto_apply_threshold", 0.8)
		v.SetDefault(prefix+"initial_confidence", 0.5)
		v.SetDefault(prefix+"confidence_step", 0.15)
		v.SetDefault(prefix+"drift", name == EngineActivity)
		if name == EngineActivity {
			v.SetDefault(prefix+"stoplist", []string{"todo", "task"})
		} else {
			v.SetDefault(prefix+"stoplist", pattern.DefaultStoplist)
		}
	}
}

// LoadConfig reads path (skipped when empty), applies environment overrides
// and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support, e.g. STORAGE_DRIVER
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		db, err := remote.ParseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		config.Remote.Postgres = DatabaseConfig{
			Host:     db.Host,
			Port:     db.Port,
			User:     db.User,
			Password: db.Password,
			DBName:   db.DBName,
			SSLMode:  db.SSLMode,
		}
	}

	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
	}
	if redisURL := v.GetString("REDIS_URL"); redisURL != "" {
		config.Remote.Redis.URL = redisURL
	}

	if config.Normalizer.StoplistPath != "" {
		extra, err := LoadStoplist(config.Normalizer.StoplistPath)
		if err != nil {
			return nil, err
		}
		for name, ec := range config.Engines {
			ec.Stoplist = append(append([]string(nil), ec.Stoplist...), extra...)
			config.Engines[name] = ec
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks drivers, thresholds and the prune schedule.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Remote.Driver {
	case "none", "postgres", "redis":
	default:
		return fmt.Errorf("unknown remote.driver %q", c.Remote.Driver)
	}
	if c.Remote.QueueSize <= 0 {
		return fmt.Errorf("remote.queue_size must be positive, got %d", c.Remote.QueueSize)
	}
	if c.Remote.Workers <= 0 {
		return fmt.Errorf("remote.workers must be positive, got %d", c.Remote.Workers)
	}

	if c.Drift.TTL <= 0 {
		return fmt.Errorf("drift.ttl must be positive, got %s", c.Drift.TTL)
	}
	if _, err := drift.ParseSchedule(c.Drift.PruneSchedule); err != nil {
		return fmt.Errorf("drift.prune_schedule: %w", err)
	}

	for _, name := range engineNames {
		ec, ok := c.Engines[name]
		if !ok {
			return fmt.Errorf("engines.%s is not configured", name)
		}
		if err := ec.Thresholds().Validate(); err != nil {
			return fmt.Errorf("engines.%s: %w", name, err)
		}
	}
	return nil
}
