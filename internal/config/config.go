package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Booking      BookingConfig
	Cancellation CancellationConfig
	Reminders    ReminderConfig
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string `mapstructure:"url"`
	MaxRetries   int    `mapstructure:"max_retries"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type StripeConfig struct {
	SecretKey     string  `mapstructure:"secret_key"`
	WebhookSecret string  `mapstructure:"webhook_secret"`
	DepositAmount float64 `mapstructure:"deposit_amount"`
}

// BookingConfig is the fixed business window and slot grid. It is threaded
// into the scheduling service at construction, never read globally.
type BookingConfig struct {
	OpenHour    int `mapstructure:"open_hour"`
	CloseHour   int `mapstructure:"close_hour"`
	SlotMinutes int `mapstructure:"slot_minutes"`
}

type CancellationConfig struct {
	FreeHours      int     `mapstructure:"free_hours"`
	LateFeePercent float64 `mapstructure:"late_fee_percent"`
	NoShowPercent  float64 `mapstructure:"no_show_percent"`
}

type ReminderConfig struct {
	PollInterval string `mapstructure:"poll_interval"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromEmail    string `mapstructure:"from_email"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.timeoutSeconds", 30)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("stripe.deposit_amount", 20)

	viper.SetDefault("booking.open_hour", 9)
	viper.SetDefault("booking.close_hour", 18)
	viper.SetDefault("booking.slot_minutes", 30)

	viper.SetDefault("cancellation.free_hours", 24)
	viper.SetDefault("cancellation.late_fee_percent", 50)
	viper.SetDefault("cancellation.no_show_percent", 100)

	viper.SetDefault("reminders.poll_interval", "1m")
	viper.SetDefault("reminders.smtp_port", 587)
}

func (c *Config) validate() error {
	if c.Booking.OpenHour < 0 || c.Booking.CloseHour > 24 || c.Booking.OpenHour >= c.Booking.CloseHour {
		return fmt.Errorf("invalid business window %d-%d", c.Booking.OpenHour, c.Booking.CloseHour)
	}
	if c.Booking.SlotMinutes <= 0 {
		return fmt.Errorf("slot granularity must be positive, got %d", c.Booking.SlotMinutes)
	}
	if c.Cancellation.LateFeePercent < 0 || c.Cancellation.LateFeePercent > 100 {
		return fmt.Errorf("late fee percent out of range: %v", c.Cancellation.LateFeePercent)
	}
	return nil
}
