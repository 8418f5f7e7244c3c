package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestValidateAdminTokenSecretLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{
			name:    "valid 32-byte secret",
			secret:  strings.Repeat("k", 32),
			wantErr: false,
		},
		{
			name:    "invalid short secret",
			secret:  "short",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			cfg.AdminTokenSecret = tt.secret

			err := cfg.validate()
			if tt.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateCacheProvider(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "memcached"

	err := cfg.validate()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "CacheProvider") || !strings.Contains(err.Error(), "oneof") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRedisConnectionRequiredForRedisCache(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.CacheProvider = "redis"
	cfg.RedisConnectionString = ""

	if err := cfg.validate(); err == nil {
		t.Fatalf("expected error when redis cache has no connection string")
	}
}

func TestValidateDesignPipelineSecrets(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		wantMissing string
	}{
		{
			name:    "disabled pipeline needs nothing",
			mutate:  func(c *Config) { c.DesignPipelineEnabled = false },
			wantErr: false,
		},
		{
			name: "enabled pipeline with all secrets",
			mutate: func(c *Config) {
				c.DesignPipelineEnabled = true
				c.OpenRouterAPIKey = "or_key"
				c.ImgurClientID = "imgur"
				c.GelatoStoreID = "store"
			},
			wantErr: false,
		},
		{
			name: "enabled pipeline without image host",
			mutate: func(c *Config) {
				c.DesignPipelineEnabled = true
				c.OpenRouterAPIKey = "or_key"
				c.GelatoStoreID = "store"
			},
			wantErr:     true,
			wantMissing: "IMGUR_CLIENT_ID",
		},
		{
			name: "enabled pipeline without anything",
			mutate: func(c *Config) {
				c.DesignPipelineEnabled = true
			},
			wantErr:     true,
			wantMissing: "OPENROUTER_API_KEY, IMGUR_CLIENT_ID, GELATO_STORE_ID",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.validate()
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMissing) {
				t.Fatalf("error %q does not mention %q", err, tt.wantMissing)
			}
		})
	}
}

func TestValidateWebhookSecretPrefix(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.StripeWebhookSecret = "not-a-secret"

	if err := cfg.validate(); err == nil {
		t.Fatalf("expected error for malformed webhook secret")
	}
}

func TestValidatePromotionCapMode(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PromotionCapMode = "soft"
	if err := cfg.validate(); err == nil {
		t.Fatalf("expected error for unknown cap mode")
	}

	cfg.PromotionCapMode = "advisory"
	if err := cfg.validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.HardPromotionCap() {
		t.Fatalf("advisory mode must not report a hard cap")
	}
}

func TestLoadFailsFastOnMissingSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/sifrok")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("GELATO_API_KEY", "gelato")
	t.Setenv("ADMIN_TOKEN_SECRET", strings.Repeat("s", 32))

	if _, err := Load(); err == nil {
		t.Fatalf("expected Load to fail without STRIPE_SECRET_KEY")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/sifrok")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_test")
	t.Setenv("GELATO_API_KEY", "gelato")
	t.Setenv("ADMIN_TOKEN_SECRET", strings.Repeat("s", 32))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BatchGenerationInterval != 2*time.Second {
		t.Fatalf("BatchGenerationInterval = %v, want 2s", cfg.BatchGenerationInterval)
	}
	if cfg.DefaultShippingCountry != "ES" {
		t.Fatalf("DefaultShippingCountry = %q, want ES", cfg.DefaultShippingCountry)
	}
	if !cfg.FulfillmentAutoSubmit {
		t.Fatalf("expected fulfillment auto submit to default on")
	}
	if !cfg.HardPromotionCap() {
		t.Fatalf("expected hard promotion cap by default")
	}
}

func validConfig() *Config {
	return &Config{
		DatabaseURL:             "postgres://localhost:5432/sifrok",
		StripeSecretKey:         "sk_test_123",
		StripeWebhookSecret:     "whsec_test",
		GelatoAPIKey:            "gelato",
		GelatoOrderAPIURL:       "https://order.gelatoapis.com/v4",
		GelatoProductAPIURL:     "https://product.gelatoapis.com/v3",
		GelatoEcommerceURL:      "https://ecommerce.gelatoapis.com/v1",
		OpenRouterImageModel:    "google/gemini-2.0-flash-exp:free",
		BatchGenerationInterval: 2 * time.Second,
		AdminTokenSecret:        strings.Repeat("s", 32),
		DefaultShippingCountry:  "ES",
		PromotionCapMode:        "hard",
		CacheProvider:           "memory",
		RedisConnectionString:   "redis://localhost:6379/0",
		LogLevel:                slog.LevelInfo,
		LogFormat:               "text",
		Port:                    "8080",
	}
}
