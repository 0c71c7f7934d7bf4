package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	SeedFile    string `mapstructure:"SEED_FILE"`

	RedisURL         string        `mapstructure:"REDIS_URL"`
	MQTTBroker       string        `mapstructure:"MQTT_BROKER"`
	MQTTClientID     string        `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopicPrefix  string        `mapstructure:"MQTT_TOPIC_PREFIX"`
	ReconnectBackoff time.Duration `mapstructure:"RECONNECT_BACKOFF"`

	PerformanceURL      string        `mapstructure:"PERFORMANCE_URL"`
	PerformanceCacheTTL time.Duration `mapstructure:"PERFORMANCE_CACHE_TTL"`
	GeocoderURL         string        `mapstructure:"GEOCODER_URL"`
	GeocodeCountry      string        `mapstructure:"GEOCODE_COUNTRY"`
	AverageSpeedKmh     float64       `mapstructure:"AVERAGE_SPEED_KMH"`
	RoadFactor          float64       `mapstructure:"ROAD_FACTOR"`

	Timezone             string        `mapstructure:"TIMEZONE"`
	MaxDailyTasks        int           `mapstructure:"MAX_DAILY_TASKS"`
	SlotGridMinutes      int           `mapstructure:"SLOT_GRID_MINUTES"`
	NeutralLocationScore float64       `mapstructure:"NEUTRAL_LOCATION_SCORE"`
	RefreshInterval      time.Duration `mapstructure:"REFRESH_INTERVAL"`
	RebalanceInterval    time.Duration `mapstructure:"REBALANCE_INTERVAL"`

	CORSAllowed     string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout  time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB int64         `mapstructure:"MAX_UPLOAD_MB"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("SEED_FILE", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("MQTT_BROKER", "")
	v.SetDefault("MQTT_CLIENT_ID", "hvac-dispatch")
	v.SetDefault("MQTT_TOPIC_PREFIX", "dispatch")
	v.SetDefault("RECONNECT_BACKOFF", "5s")
	v.SetDefault("PERFORMANCE_URL", "")
	v.SetDefault("PERFORMANCE_CACHE_TTL", "5m")
	v.SetDefault("GEOCODER_URL", "")
	v.SetDefault("GEOCODE_COUNTRY", "Poland")
	v.SetDefault("AVERAGE_SPEED_KMH", 40)
	v.SetDefault("ROAD_FACTOR", 1.3)
	v.SetDefault("TIMEZONE", "Europe/Warsaw")
	v.SetDefault("MAX_DAILY_TASKS", 8)
	v.SetDefault("SLOT_GRID_MINUTES", 30)
	v.SetDefault("NEUTRAL_LOCATION_SCORE", 50)
	v.SetDefault("REFRESH_INTERVAL", "30s")
	v.SetDefault("REBALANCE_INTERVAL", "15m")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.MaxDailyTasks <= 0 {
		return Config{}, fmt.Errorf("MAX_DAILY_TASKS must be positive, got %d", cfg.MaxDailyTasks)
	}
	if cfg.SlotGridMinutes <= 0 {
		return Config{}, fmt.Errorf("SLOT_GRID_MINUTES must be positive, got %d", cfg.SlotGridMinutes)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("TIMEZONE: %w", err)
	}
	return cfg, nil
}

// Location returns the dispatch timezone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) SlotGrid() time.Duration {
	return time.Duration(c.SlotGridMinutes) * time.Minute
}
