// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`

	// DBSchemaMode controls how the global schema is applied on startup:
	// "sql" runs versioned SQL migrations only, "auto" runs GORM AutoMigrate
	// only, "hybrid" runs SQL migrations plus AutoMigrate outside prod-like
	// environments.
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`

	DBMaxOpenConns           int `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes int `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	Env            string `mapstructure:"APP_ENV"`

	// RootDomain is the platform's own domain. Hostnames under it (or equal
	// to it) always resolve to the global tenant; platform-assigned tenant
	// domains are subdomains of it.
	RootDomain string `mapstructure:"ROOT_DOMAIN"`

	// Hosting-provider APIs: branch provisioning and domain management.
	PlatformAPIURL   string `mapstructure:"PLATFORM_API_URL"`
	PlatformAPIToken string `mapstructure:"PLATFORM_API_TOKEN"`
	DomainAPIURL     string `mapstructure:"DOMAIN_API_URL"`
	DomainAPIToken   string `mapstructure:"DOMAIN_API_TOKEN"`

	// ResolverTimeoutMS bounds the tenant directory lookup per hostname.
	ResolverTimeoutMS int `mapstructure:"RESOLVER_TIMEOUT_MS"`

	// ReconcileWorkers bounds the identity reconciliation worker pool.
	ReconcileWorkers int `mapstructure:"RECONCILE_WORKERS"`

	// TenantEditableKeys is the comma-separated allow-list of setting keys
	// that non-super administrators may override for their own tenant.
	TenantEditableKeys string `mapstructure:"TENANT_EDITABLE_KEYS"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config
	// We intentionally ignore this error as the config file may not exist yet
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	// Set default values for development
	viper.SetDefault("PORT", "8460")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "arbor_global")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", "your-secret-key-change-in-production")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("ROOT_DOMAIN", "arbor.app")
	viper.SetDefault("PLATFORM_API_URL", "")
	viper.SetDefault("PLATFORM_API_TOKEN", "")
	viper.SetDefault("DOMAIN_API_URL", "")
	viper.SetDefault("DOMAIN_API_TOKEN", "")
	viper.SetDefault("RESOLVER_TIMEOUT_MS", 2500)
	viper.SetDefault("RECONCILE_WORKERS", 4)
	viper.SetDefault("TENANT_EDITABLE_KEYS", "site_name,site_logo,site_favicon,site_description")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.RootDomain == "" {
		return errors.New("ROOT_DOMAIN is required")
	}
	if c.ResolverTimeoutMS <= 0 {
		return errors.New("RESOLVER_TIMEOUT_MS must be positive")
	}
	if c.ReconcileWorkers <= 0 {
		return errors.New("RECONCILE_WORKERS must be positive")
	}

	isProduction := c.Env == "production" || c.Env == "prod"

	// Strict checks for production
	if isProduction {
		if c.JWTSecret == "your-secret-key-change-in-production" {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.PlatformAPIURL == "" || c.PlatformAPIToken == "" {
			return errors.New("PLATFORM_API_URL and PLATFORM_API_TOKEN are required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			log.Println("WARNING: DB_SSLMODE is 'disable' in production. It is highly recommended to use SSL for database connections.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else {
		// Development/Test warnings
		if len(c.JWTSecret) < 32 {
			log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
		}
	}

	return nil
}

// ResolverTimeout returns the hostname resolver lookup bound as a duration.
func (c *Config) ResolverTimeout() time.Duration {
	return time.Duration(c.ResolverTimeoutMS) * time.Millisecond
}

// EditableKeys returns the tenant-editable setting keys as a normalized set.
func (c *Config) EditableKeys() map[string]bool {
	out := make(map[string]bool)
	for _, k := range strings.Split(c.TenantEditableKeys, ",") {
		k = strings.TrimSpace(strings.ToLower(k))
		if k != "" {
			out[k] = true
		}
	}
	return out
}
