package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,required" validate:"required"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`

	GelatoAPIKey          string `env:"GELATO_API_KEY,required" validate:"required"`
	GelatoStoreID         string `env:"GELATO_STORE_ID"`
	GelatoOrderAPIURL     string `env:"GELATO_ORDER_API_URL" envDefault:"https://order.gelatoapis.com/v4" validate:"required,url"`
	GelatoProductAPIURL   string `env:"GELATO_PRODUCT_API_URL" envDefault:"https://product.gelatoapis.com/v3" validate:"required,url"`
	GelatoEcommerceURL    string `env:"GELATO_ECOMMERCE_API_URL" envDefault:"https://ecommerce.gelatoapis.com/v1" validate:"required,url"`
	FulfillmentAutoSubmit bool   `env:"FULFILLMENT_AUTO_SUBMIT" envDefault:"true"`

	DesignPipelineEnabled   bool          `env:"DESIGN_PIPELINE_ENABLED" envDefault:"false"`
	OpenRouterAPIKey        string        `env:"OPENROUTER_API_KEY"`
	OpenRouterImageModel    string        `env:"OPENROUTER_IMAGE_MODEL" envDefault:"google/gemini-2.0-flash-exp:free"`
	OpenRouterTextModel     string        `env:"OPENROUTER_TEXT_MODEL" envDefault:"google/gemini-2.5-flash"`
	ImgurClientID           string        `env:"IMGUR_CLIENT_ID"`
	ReplicateAPIToken       string        `env:"REPLICATE_API_TOKEN"`
	BatchGenerationInterval time.Duration `env:"BATCH_GENERATION_INTERVAL" envDefault:"2s" validate:"gte=0"`

	AdminTokenSecret string `env:"ADMIN_TOKEN_SECRET,required" validate:"required,min=32"`
	BaseURL          string `env:"BASE_URL" validate:"omitempty,url"`

	DefaultShippingCountry string `env:"DEFAULT_SHIPPING_COUNTRY" envDefault:"ES" validate:"len=2"`
	PromotionCapMode       string `env:"PROMOTION_CAP_MODE" envDefault:"hard" validate:"oneof=hard advisory"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	if c.DesignPipelineEnabled {
		var missing []string
		if strings.TrimSpace(c.OpenRouterAPIKey) == "" {
			missing = append(missing, "OPENROUTER_API_KEY")
		}
		if strings.TrimSpace(c.ImgurClientID) == "" {
			missing = append(missing, "IMGUR_CLIENT_ID")
		}
		if strings.TrimSpace(c.GelatoStoreID) == "" {
			missing = append(missing, "GELATO_STORE_ID")
		}
		if len(missing) > 0 {
			return fmt.Errorf("design pipeline enabled but %s not set", strings.Join(missing, ", "))
		}
	}

	if !strings.HasPrefix(c.StripeWebhookSecret, "whsec_") {
		return fmt.Errorf("STRIPE_WEBHOOK_SECRET must start with whsec_")
	}

	return nil
}

// HardPromotionCap reports whether promotion redemptions stop at max uses.
func (c *Config) HardPromotionCap() bool {
	return c.PromotionCapMode != "advisory"
}
