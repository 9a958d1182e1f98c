package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/geo"
	"github.com/Kilat-Pet-Delivery/service-quote/internal/domain/quote"
)

// ServiceConfig holds all configuration for the quote service.
type ServiceConfig struct {
	Port       string           `mapstructure:"port"`
	AppEnv     string           `mapstructure:"app_env"`
	DB         DatabaseConfig   `mapstructure:"db"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
	AMQP       AMQPConfig       `mapstructure:"amqp"`
	Submission SubmissionConfig `mapstructure:"submission"`
	Geocoding  GeocodingConfig  `mapstructure:"geocoding"`
	Estimator  EstimatorConfig  `mapstructure:"estimator"`
	Pricing    quote.RateCard   `mapstructure:"pricing"`
	Map        MapConfig        `mapstructure:"map"`
	Session    SessionConfig    `mapstructure:"session"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the key/value connection string used by GORM.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// DatabaseURL returns the URL form used by the migration runner.
func (c DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     c.DBName,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// KafkaConfig holds broker settings.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	GroupPrefix string   `mapstructure:"group_prefix"`
}

// RedisConfig holds the geocode cache settings. An empty Addr disables the cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// AMQPConfig holds the RabbitMQ connection settings.
type AMQPConfig struct {
	URL string `mapstructure:"url"`
}

// SubmissionConfig selects where requested quotes are handed off.
type SubmissionConfig struct {
	Transport string `mapstructure:"transport"`
}

// GeocodingConfig configures the reverse geocoding provider.
type GeocodingConfig struct {
	Provider  string        `mapstructure:"provider"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Language  string        `mapstructure:"language"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// EstimatorConfig selects and configures the route estimation strategy.
type EstimatorConfig struct {
	Strategy        string        `mapstructure:"strategy"`
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	AverageSpeedKmh float64       `mapstructure:"average_speed_kmh"`
	Fallback        bool          `mapstructure:"fallback"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// MapConfig holds the initial viewport and the service area.
type MapConfig struct {
	CenterLat float64    `mapstructure:"center_lat"`
	CenterLng float64    `mapstructure:"center_lng"`
	Zoom      int        `mapstructure:"zoom"`
	Bounds    geo.Bounds `mapstructure:"bounds"`
}

// Center returns the initial map center.
func (m MapConfig) Center() geo.GeoPoint {
	return geo.GeoPoint{Lat: m.CenterLat, Lng: m.CenterLng}
}

// SessionConfig controls the lifetime of idle map sessions.
type SessionConfig struct {
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// Load reads configuration from an optional config file and QUOTE_* environment variables.
func Load() (*ServiceConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg ServiceConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects inconsistent settings.
func (c *ServiceConfig) Validate() error {
	if err := c.Map.Bounds.Validate(); err != nil {
		return fmt.Errorf("map: %w", err)
	}
	if !c.Map.Bounds.Contains(c.Map.Center()) {
		return fmt.Errorf("map: center %s lies outside the service area", c.Map.Center())
	}
	if err := c.Pricing.Validate(); err != nil {
		return fmt.Errorf("pricing: %w", err)
	}
	switch c.Estimator.Strategy {
	case "haversine", "directions", "osrm", "zone":
	default:
		return fmt.Errorf("estimator: unknown strategy %q", c.Estimator.Strategy)
	}
	if c.Estimator.AverageSpeedKmh <= 0 {
		return fmt.Errorf("estimator: average speed must be positive")
	}
	switch c.Geocoding.Provider {
	case "google", "nominatim", "none":
	default:
		return fmt.Errorf("geocoding: unknown provider %q", c.Geocoding.Provider)
	}
	switch c.Submission.Transport {
	case "kafka", "amqp":
	default:
		return fmt.Errorf("submission: unknown transport %q", c.Submission.Transport)
	}
	if c.Submission.Transport == "amqp" && c.AMQP.URL == "" {
		return fmt.Errorf("submission: amqp transport requires amqp.url")
	}
	if c.Session.IdleTTL <= 0 || c.Session.ReapInterval <= 0 {
		return fmt.Errorf("session: idle_ttl and reap_interval must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", ":8086")
	v.SetDefault("app_env", "development")

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "postgres")
	v.SetDefault("db.name", "quote_db")
	v.SetDefault("db.sslmode", "disable")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.group_prefix", "kilat-")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", 24*time.Hour)

	v.SetDefault("amqp.url", "")
	v.SetDefault("submission.transport", "kafka")

	v.SetDefault("geocoding.provider", "nominatim")
	v.SetDefault("geocoding.base_url", "")
	v.SetDefault("geocoding.api_key", "")
	v.SetDefault("geocoding.language", "es")
	v.SetDefault("geocoding.user_agent", "service-quote/1.0")
	v.SetDefault("geocoding.timeout", 5*time.Second)

	v.SetDefault("estimator.strategy", "haversine")
	v.SetDefault("estimator.base_url", "")
	v.SetDefault("estimator.api_key", "")
	v.SetDefault("estimator.average_speed_kmh", 40.0)
	v.SetDefault("estimator.fallback", true)
	v.SetDefault("estimator.timeout", 10*time.Second)

	rates := quote.DefaultRateCard()
	v.SetDefault("pricing.hourly_rate", rates.HourlyRate)
	v.SetDefault("pricing.fixed_rate", rates.FixedRate)
	v.SetDefault("pricing.currency", rates.Currency)
	v.SetDefault("pricing.night_rate", rates.NightRate)
	v.SetDefault("pricing.night_base", string(rates.NightBase))
	v.SetDefault("pricing.night_start_hour", rates.NightStartHour)
	v.SetDefault("pricing.night_end_hour", rates.NightEndHour)
	v.SetDefault("pricing.vehicle_surcharges", rates.VehicleSurcharges)

	v.SetDefault("map.center_lat", 19.4326)
	v.SetDefault("map.center_lng", -99.1332)
	v.SetDefault("map.zoom", 11)
	v.SetDefault("map.bounds.north", 19.5928)
	v.SetDefault("map.bounds.south", 19.1223)
	v.SetDefault("map.bounds.east", -98.9400)
	v.SetDefault("map.bounds.west", -99.3643)

	v.SetDefault("session.idle_ttl", 30*time.Minute)
	v.SetDefault("session.reap_interval", time.Minute)
}
