package config

import (
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/viper"
)

// AppConfig holds the configuration for the application.
// Tags used:
// - mapstructure: used by viper to unmarshal
// - default: default value to set if missing
// - required: if "true", error if missing
type AppConfig struct {
	// Environment specifies the runtime environment (e.g., development, production).
	Environment string `mapstructure:"APP_ENV" default:"development"`
	// LogLevel defines the logging verbosity (e.g., debug, info, error).
	LogLevel string `mapstructure:"LOG_LEVEL" default:"info"`
	// ServerPort is the port where the server will listen.
	ServerPort int `mapstructure:"SERVER_PORT" default:"8080"`

	// DatabaseURL is the Postgres connection string for order storage.
	DatabaseURL string `mapstructure:"DATABASE_URL" required:"true"`

	// RedisURL is the Redis connection string for the order read cache.
	// Empty disables caching.
	RedisURL string `mapstructure:"REDIS_URL"`
	// OrderCacheTTLSeconds is how long a cached order stays valid.
	OrderCacheTTLSeconds int `mapstructure:"ORDER_CACHE_TTL" default:"60"`

	// FedEx holds the carrier gateway configuration.
	FedEx FedExConfig `mapstructure:",squash"`
}

// FedExConfig holds the credentials and policy knobs for the FedEx gateway.
type FedExConfig struct {
	// APIURL is the base URL of the FedEx REST API.
	APIURL string `mapstructure:"FEDEX_API_URL" required:"true"`
	// ClientID is the OAuth client id for API access.
	ClientID string `mapstructure:"FEDEX_CLIENT_ID" required:"true"`
	// ClientSecret is the OAuth client secret for API access.
	ClientSecret string `mapstructure:"FEDEX_CLIENT_SECRET" required:"true"`
	// AccountNumber is the shipper account billed for purchased labels.
	AccountNumber string `mapstructure:"FEDEX_ACCOUNT_NUMBER" required:"true"`
	// MaxTransitDays is the delivery-speed floor used when selecting a rate quote.
	MaxTransitDays int `mapstructure:"FEDEX_MAX_TRANSIT_DAYS" default:"5"`
	// TimeoutSeconds bounds every call to the carrier API.
	TimeoutSeconds int `mapstructure:"FEDEX_TIMEOUT_SECONDS" default:"15"`
}

// Timeout returns the carrier call timeout as a duration.
func (c FedExConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// OrderCacheTTL returns the order cache TTL as a duration.
func (c *AppConfig) OrderCacheTTL() time.Duration {
	return time.Duration(c.OrderCacheTTLSeconds) * time.Second
}

// Load loads configuration from .env files and environment variables.
func Load(path string) (*AppConfig, error) {
	v := viper.New()

	v.AutomaticEnv()

	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config AppConfig

	if err := processTags(v, &config); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validateRequired(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// processTags iterates over the struct fields, binds env keys and sets default values in Viper.
func processTags(v *viper.Viper, config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := processTags(v, val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		key := field.Tag.Get("mapstructure")
		defaultValue := field.Tag.Get("default")

		if key != "" {
			v.BindEnv(key)
		}

		if key != "" && defaultValue != "" {
			v.SetDefault(key, defaultValue)
		}
	}
	return nil
}

// validateRequired checks if fields marked as required have non-zero values.
func validateRequired(config interface{}) error {
	val := reflect.ValueOf(config)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	t := val.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Type.Kind() == reflect.Struct {
			if err := validateRequired(val.Field(i).Addr().Interface()); err != nil {
				return err
			}
			continue
		}

		required := field.Tag.Get("required")
		if required == "true" {
			value := val.Field(i)
			if isZero(value) {
				key := field.Tag.Get("mapstructure")
				return fmt.Errorf("missing required configuration: %s", key)
			}
		}
	}
	return nil
}

// isZero checks if a reflect.Value is the zero value for its type.
func isZero(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.String:
		return v.String() == ""
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Slice, reflect.Map:
		return v.Len() == 0
	default:
		return v.IsZero()
	}
}
