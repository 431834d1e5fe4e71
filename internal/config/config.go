package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"runaway_tracker/internal/recorder"
)

type Config struct {
	ServerAddr  string   `mapstructure:"SERVER_ADDR"`
	CORSOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"` // comma separated, empty allows any

	DBDriver   string `mapstructure:"DB_DRIVER"` // "pgx" or "postgres" (lib/pq)
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`
	DBTimezone string `mapstructure:"DB_TIMEZONE"`

	// empty disables the redis fan-out
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`

	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTTTLHours int    `mapstructure:"JWT_TTL_HOURS"`

	LogFile   string `mapstructure:"LOG_FILE"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogStdout bool   `mapstructure:"LOG_STDOUT"`

	FilterMaxAccuracy       float64       `mapstructure:"FILTER_MAX_ACCURACY_M"`
	FilterMinMovement       float64       `mapstructure:"FILTER_MIN_MOVEMENT_M"`
	FilterMaxPlausibleSpeed float64       `mapstructure:"FILTER_MAX_PLAUSIBLE_SPEED_MPS"`
	SpeedWindow             int           `mapstructure:"SPEED_WINDOW"`
	AutopauseEnabled        bool          `mapstructure:"AUTOPAUSE_ENABLED"`
	AutopauseSpeed          float64       `mapstructure:"AUTOPAUSE_SPEED_MPS"`
	AutopauseDelay          time.Duration `mapstructure:"AUTOPAUSE_DELAY"`
	TelemetryInterval       time.Duration `mapstructure:"TELEMETRY_INTERVAL"`
	DistanceUnit            string        `mapstructure:"DISTANCE_UNIT"`
}

// Load reads .env (if present) and the environment. A value that does not
// parse is an error rather than a silent default.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, relying on env vars")
	}

	v := viper.New()
	v.AutomaticEnv()

	pipeline := recorder.DefaultConfig()
	defaults := map[string]interface{}{
		"SERVER_ADDR":                    ":8080",
		"CORS_ALLOWED_ORIGINS":           "",
		"DB_DRIVER":                      "pgx",
		"DB_HOST":                        "localhost",
		"DB_PORT":                        "5432",
		"DB_USER":                        "postgres",
		"DB_PASSWORD":                    "password",
		"DB_NAME":                        "runaway",
		"DB_SSLMODE":                     "disable",
		"DB_TIMEZONE":                    "UTC",
		"REDIS_ADDR":                     "",
		"REDIS_PASSWORD":                 "",
		"JWT_SECRET":                     "dev-secret-change-me",
		"JWT_TTL_HOURS":                  72,
		"LOG_FILE":                       "./logs/app.log",
		"LOG_LEVEL":                      "info",
		"LOG_STDOUT":                     false,
		"FILTER_MAX_ACCURACY_M":          pipeline.MaxAccuracy,
		"FILTER_MIN_MOVEMENT_M":          pipeline.MinMovement,
		"FILTER_MAX_PLAUSIBLE_SPEED_MPS": pipeline.MaxPlausibleSpeed,
		"SPEED_WINDOW":                   pipeline.SpeedWindow,
		"AUTOPAUSE_ENABLED":              pipeline.AutopauseEnabled,
		"AUTOPAUSE_SPEED_MPS":            pipeline.AutopauseSpeed,
		"AUTOPAUSE_DELAY":                pipeline.AutopauseDelay.String(),
		"TELEMETRY_INTERVAL":             pipeline.TelemetryInterval.String(),
		"DISTANCE_UNIT":                  string(pipeline.Unit),
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration value: %w", err)
	}
	return cfg, nil
}

// DSN builds the postgres connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=%s",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort, c.DBSSLMode, c.DBTimezone,
	)
}

// JWTTTL is the lifetime of issued tokens.
func (c Config) JWTTTL() time.Duration {
	if c.JWTTTLHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.JWTTTLHours) * time.Hour
}

// PipelineConfig projects the recorder thresholds. Non-positive values fall
// back to the defaults.
func (c Config) PipelineConfig() recorder.Config {
	out := recorder.DefaultConfig()
	if c.FilterMaxAccuracy > 0 {
		out.MaxAccuracy = c.FilterMaxAccuracy
	}
	if c.FilterMinMovement > 0 {
		out.MinMovement = c.FilterMinMovement
	}
	if c.FilterMaxPlausibleSpeed > 0 {
		out.MaxPlausibleSpeed = c.FilterMaxPlausibleSpeed
	}
	if c.SpeedWindow > 0 {
		out.SpeedWindow = c.SpeedWindow
	}
	if c.AutopauseSpeed > 0 {
		out.AutopauseSpeed = c.AutopauseSpeed
	}
	if c.AutopauseDelay > 0 {
		out.AutopauseDelay = c.AutopauseDelay
	}
	if c.TelemetryInterval > 0 {
		out.TelemetryInterval = c.TelemetryInterval
	}
	out.AutopauseEnabled = c.AutopauseEnabled
	out.Unit = recorder.ParseDistanceUnit(c.DistanceUnit)
	return out
}
