package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// PublicURL is the externally visible origin, used to build magic links.
	PublicURL string `env:"PUBLIC_URL, default=http://localhost:8080"`
	// NodeID seeds snowflake ids; unique per instance.
	NodeID int64 `env:"NODE_ID, default=1"`
	// NotifyWorkers is the number of magic-link delivery workers.
	NotifyWorkers int `env:"NOTIFY_WORKERS, default=4"`
	// TrustedProxies lists the CIDRs allowed to set X-Forwarded-For. Empty
	// means the socket peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	JWT         JWTConfig
	MagicLink   MagicLinkConfig
	Cookie      CookieConfig
	RateLimit   RateLimitConfig
	Maintenance MaintenanceConfig
	Bootstrap   BootstrapConfig
	SMTP        SMTPConfig
	Mongo       MongoConfig
	Redis       RedisConfig
}

type JWTConfig struct {
	Secret     string        `env:"JWT_SECRET"`
	Issuer     string        `env:"JWT_ISSUER,      default=seller-auth"`
	AccessTTL  time.Duration `env:"JWT_ACCESS_TTL,  default=10m"`
	RefreshTTL time.Duration `env:"JWT_REFRESH_TTL, default=336h"`
}

type MagicLinkConfig struct {
	TTL time.Duration `env:"MAGIC_LINK_TTL, default=15m"`
	// SingleOutstanding invalidates earlier unused links on every new request.
	SingleOutstanding bool `env:"MAGIC_LINK_SINGLE_OUTSTANDING, default=false"`
}

type CookieConfig struct {
	Domain string `env:"COOKIE_DOMAIN"`
	Secure bool   `env:"COOKIE_SECURE, default=true"`
}

type RateLimitConfig struct {
	// PerIPPerMinute bounds magic-link requests per client address.
	PerIPPerMinute int `env:"RATE_LIMIT_PER_IP_PER_MINUTE, default=30"`
	// PerEmail and EmailWindow bound link requests for one address.
	PerEmail    int           `env:"RATE_LIMIT_PER_EMAIL,        default=5"`
	EmailWindow time.Duration `env:"RATE_LIMIT_EMAIL_WINDOW,     default=15m"`
}

type MaintenanceConfig struct {
	// Default applies until an admin writes the flag.
	Default bool `env:"MAINTENANCE_DEFAULT, default=false"`
}

type BootstrapConfig struct {
	AdminEmail string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	AdminName  string `env:"BOOTSTRAP_ADMIN_NAME, default=Administrator"`
}

type SMTPConfig struct {
	Host        string `env:"SMTP_HOST"`
	Port        string `env:"SMTP_PORT,         default=587"`
	Username    string `env:"SMTP_USERNAME"`
	Password    string `env:"SMTP_PASSWORD"`
	From        string `env:"SMTP_FROM,         default=no-reply@localhost"`
	FromName    string `env:"SMTP_FROM_NAME,    default=Seller Center"`
	ImplicitTLS bool   `env:"SMTP_IMPLICIT_TLS, default=false"`
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI,           default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,            default=seller_auth"`
	AppName     string `env:"MONGO_APP_NAME,      default=seller-auth"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=50"`
}

type RedisConfig struct {
	Addr       string `env:"REDIS_ADDR,        default=localhost:6379"`
	Password   string `env:"REDIS_PASSWORD"`
	DB         int    `env:"REDIS_DB,          default=0"`
	PoolSize   int    `env:"REDIS_POOL_SIZE,   default=20"`
	ClientName string `env:"REDIS_CLIENT_NAME, default=seller-auth"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith processes and validates configuration from an arbitrary lookuper.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the auth core cannot run safely with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		errs = append(errs, errors.New("JWT_ACCESS_TTL must be positive and shorter than JWT_REFRESH_TTL"))
	}
	if c.MagicLink.TTL < 5*time.Minute || c.MagicLink.TTL > time.Hour {
		errs = append(errs, errors.New("MAGIC_LINK_TTL must be between 5m and 60m"))
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		errs = append(errs, errors.New("NODE_ID must be between 0 and 1023"))
	}
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Development reports whether the service runs on a developer machine.
func (c *Config) Development() bool {
	return c.Env == "development"
}
