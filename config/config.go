// config/config.go
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"mpesa-gateway/internal/domain"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Mpesa    MpesaConfig

	// StoreName appears on the STK prompt description.
	StoreName string
	// Debug enables the outbound request-body capture endpoint.
	Debug bool
	// NotifyChannel is the redis channel completed payments publish to.
	NotifyChannel string
}

type ServerConfig struct {
	Port string
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// MpesaConfig is the merchant's own Daraja credential set, resolved as
// tenant 0. Marketplace vendors come from the tenants table instead.
type MpesaConfig struct {
	Environment       string
	ConsumerKey       string
	ConsumerSecret    string
	HeadOffice        string
	ShortCode         string
	IdentifierType    int
	Passkey           string
	InitiatorName     string
	InitiatorPassword string
	CertPath          string
	AccountReference  string
	Signature         string
	CompletionStatus  string
	CallbackBaseURL   string
}

func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using process environment")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8030"),
			Env:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mpesa_gateway"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Mpesa: MpesaConfig{
			Environment:       getEnv("MPESA_ENVIRONMENT", "sandbox"),
			ConsumerKey:       getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:    getEnv("MPESA_CONSUMER_SECRET", ""),
			HeadOffice:        getEnv("MPESA_HEAD_OFFICE", ""),
			ShortCode:         getEnv("MPESA_SHORT_CODE", ""),
			IdentifierType:    getEnvInt("MPESA_IDENTIFIER_TYPE", int(domain.IdentifierPaybill)),
			Passkey:           getEnv("MPESA_PASSKEY", ""),
			InitiatorName:     getEnv("MPESA_INITIATOR_NAME", ""),
			InitiatorPassword: getEnv("MPESA_INITIATOR_PASSWORD", ""),
			CertPath:          getEnv("MPESA_CERT_PATH", "./certs/cert.cer"),
			AccountReference:  getEnv("MPESA_ACCOUNT_REFERENCE", ""),
			Signature:         getEnv("MPESA_CALLBACK_SIGNATURE", ""),
			CompletionStatus:  getEnv("MPESA_COMPLETION_STATUS", ""),
			CallbackBaseURL:   strings.TrimSuffix(getEnv("CALLBACK_BASE_URL", "http://localhost:8030"), "/"),
		},
		StoreName:     getEnv("STORE_NAME", "Store"),
		Debug:         getEnvBool("DEBUG", false),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "mpesa:payments"),
	}

	if cfg.Mpesa.HeadOffice == "" {
		cfg.Mpesa.HeadOffice = cfg.Mpesa.ShortCode
	}

	if cfg.Mpesa.Signature == "" {
		logger.Warn("MPESA_CALLBACK_SIGNATURE is empty, reconcile callbacks are accepted without a signature check")
	}

	return cfg, nil
}

// DefaultTenant builds the tenant-0 credential bundle from the merchant
// configuration.
func (c *Config) DefaultTenant() domain.TenantConfig {
	return domain.TenantConfig{
		Env:               domain.Environment(c.Mpesa.Environment),
		AppKey:            c.Mpesa.ConsumerKey,
		AppSecret:         c.Mpesa.ConsumerSecret,
		HeadOffice:        c.Mpesa.HeadOffice,
		ShortCode:         c.Mpesa.ShortCode,
		IdentifierType:    domain.IdentifierType(c.Mpesa.IdentifierType),
		Passkey:           c.Mpesa.Passkey,
		Initiator:         c.Mpesa.InitiatorName,
		InitiatorPassword: c.Mpesa.InitiatorPassword,
		CertPath:          c.Mpesa.CertPath,
		AccountReference:  c.Mpesa.AccountReference,
		Signature:         c.Mpesa.Signature,
		CompletionStatus:  domain.OrderStatus(c.Mpesa.CompletionStatus),
		CallbackBaseURL:   c.Mpesa.CallbackBaseURL,
	}
}

// DatabaseURL renders the pgx connection string.
func (c *Config) DatabaseURL() string {
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.DBName + "?sslmode=" + c.Database.SSLMode
}

// RedisAddr renders the host:port redis address.
func (c *Config) RedisAddr() string {
	return c.Redis.Host + ":" + c.Redis.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolVal, err := strconv.ParseBool(value)
		if err == nil {
			return boolVal
		}
	}
	return defaultValue
}
