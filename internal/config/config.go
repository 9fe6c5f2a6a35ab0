package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTIssuer string `mapstructure:"JWT_ISSUER"`

	AIEndpoint  string `mapstructure:"AI_ENDPOINT"`
	AIAPIKey    string `mapstructure:"AI_API_KEY"`
	AITimeoutMS int    `mapstructure:"AI_TIMEOUT_MS"`

	UrgentThreshold              float64 `mapstructure:"URGENT_THRESHOLD"`
	AppointmentPriorityThreshold float64 `mapstructure:"APPOINTMENT_PRIORITY_THRESHOLD"`
	VitalsMinutesPerPatient      int     `mapstructure:"VITALS_MINUTES_PER_PATIENT"`

	StaffAlertAddress string `mapstructure:"STAFF_ALERT_ADDRESS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "queue-engine")
	v.SetDefault("AI_TIMEOUT_MS", 5000)
	v.SetDefault("URGENT_THRESHOLD", 0.8)
	v.SetDefault("APPOINTMENT_PRIORITY_THRESHOLD", 0.9)
	v.SetDefault("VITALS_MINUTES_PER_PATIENT", 5)
	v.SetDefault("STAFF_ALERT_ADDRESS", "frontdesk@clinic.local")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("JWT_ISSUER")
	v.BindEnv("AI_ENDPOINT")
	v.BindEnv("AI_API_KEY")
	v.BindEnv("AI_TIMEOUT_MS")
	v.BindEnv("URGENT_THRESHOLD")
	v.BindEnv("APPOINTMENT_PRIORITY_THRESHOLD")
	v.BindEnv("VITALS_MINUTES_PER_PATIENT")
	v.BindEnv("STAFF_ALERT_ADDRESS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active: all requests get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure JWT_SECRET for production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// AITimeout returns the AI scoring call timeout as a duration.
func (c *Config) AITimeout() time.Duration {
	if c.AITimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.AITimeoutMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT secret is mandatory so staff authentication is enforced, and the AI
// endpoint must be configured.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required when ENV=%q. "+
				"Refusing to start without staff authentication", c.Env)
		}
		if c.AIEndpoint == "" {
			return fmt.Errorf("AI_ENDPOINT is required when ENV=%q", c.Env)
		}
	}

	if c.UrgentThreshold < 0 || c.UrgentThreshold > 1 {
		return fmt.Errorf("URGENT_THRESHOLD must be in [0,1], got %v", c.UrgentThreshold)
	}
	if c.AppointmentPriorityThreshold < 0 || c.AppointmentPriorityThreshold > 1 {
		return fmt.Errorf("APPOINTMENT_PRIORITY_THRESHOLD must be in [0,1], got %v", c.AppointmentPriorityThreshold)
	}
	if c.VitalsMinutesPerPatient < 0 {
		return fmt.Errorf("VITALS_MINUTES_PER_PATIENT must be non-negative, got %d", c.VitalsMinutesPerPatient)
	}

	return nil
}
