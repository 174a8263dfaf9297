package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings, loaded from the environment (optionally
// via a .env file).
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	SiteURL  string `env:"SITE_URL" envDefault:"http://localhost:3000"`

	DatabaseURL   string `env:"DATABASE_URL"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"db/migrations"`

	StripeSecretKey     string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	SupabaseURL        string `env:"SUPABASE_URL"`
	SupabaseAnonKey    string `env:"SUPABASE_ANON_KEY"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
	AdminEmail   string `env:"ADMIN_EMAIL"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	PaidEventsTopic       string `env:"PAID_EVENTS_TOPIC" envDefault:"written_breakdown_paid"`

	BreakdownPricePence int64  `env:"BREAKDOWN_PRICE_PENCE" envDefault:"3900"`
	BreakdownCurrency   string `env:"BREAKDOWN_CURRENCY" envDefault:"gbp"`
}

// criticalVars must be present outside production; a misconfigured dev
// environment should fail loudly at startup rather than at the first webhook.
var criticalVars = []string{
	"DATABASE_URL",
	"STRIPE_SECRET_KEY",
	"STRIPE_WEBHOOK_SECRET",
}

// Load reads .env (if present) and the process environment into a Config.
func Load() (*Config, error) {
	// Missing .env is fine, real deployments configure the environment directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) validate() error {
	if c.IsProduction() {
		return nil
	}

	var missing []string
	values := map[string]string{
		"DATABASE_URL":          c.DatabaseURL,
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
	}
	for _, key := range criticalVars {
		if strings.TrimSpace(values[key]) == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing critical env variables in %s: %s", c.AppEnv, strings.Join(missing, ", "))
	}
	return nil
}
