package main

import (
	"path/filepath"
	"strings"
	"time"

	internalhttp "github.com/EternisAI/silo-gate/internal/api/http"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig           `mapstructure:"log"`
	Http      internalhttp.Config `mapstructure:"http"`
	Auth      AuthConfig          `mapstructure:"auth"`
	OAuth     OAuthConfig         `mapstructure:"oauth"`
	RateLimit RateLimitConfig     `mapstructure:"rate_limit"`
	Storage   StorageConfig       `mapstructure:"storage"`
}

type AuthConfig struct {
	JWTSecret         string `mapstructure:"jwt_secret"`
	TokenExpiryHours  int    `mapstructure:"token_expiry_hours"`
	AdminUsername     string `mapstructure:"admin_username"`
	AdminPasswordHash string `mapstructure:"admin_password_hash"`
}

type OAuthConfig struct {
	AuthURL            string   `mapstructure:"auth_url"`
	TokenURL           string   `mapstructure:"token_url"`
	ClientID           string   `mapstructure:"client_id"`
	ClientSecret       string   `mapstructure:"client_secret"`
	Scopes             []string `mapstructure:"scopes"`
	FlowTimeoutSeconds int      `mapstructure:"flow_timeout_seconds"`
}

func (c OAuthConfig) FlowTimeout() time.Duration {
	if c.FlowTimeoutSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.FlowTimeoutSeconds) * time.Second
}

type RateLimitConfig struct {
	Ceiling       int `mapstructure:"ceiling"`
	WindowSeconds int `mapstructure:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	if c.WindowSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.WindowSeconds) * time.Second
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

func (c StorageConfig) KeyDocumentPath() string {
	return filepath.Join(c.DataDir, "keys.json")
}

func (c StorageConfig) AuditLogPath() string {
	return filepath.Join(c.DataDir, "audit.log")
}

func (c StorageConfig) CredentialsDir() string {
	return filepath.Join(c.DataDir, "credentials")
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/silo-gate-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log.level", LOG_LEVEL_INFO)
	viper.SetDefault("http.port", 8080)
	viper.SetDefault("http.bind", "127.0.0.1")
	viper.SetDefault("http.callback.bind", "127.0.0.1")
	viper.SetDefault("http.callback.port", 8585)
	viper.SetDefault("http.callback.fallback_start", 8586)
	viper.SetDefault("http.callback.fallback_end", 8599)
	viper.SetDefault("auth.token_expiry_hours", 24)
	viper.SetDefault("oauth.flow_timeout_seconds", 300)
	viper.SetDefault("rate_limit.ceiling", 10)
	viper.SetDefault("rate_limit.window_seconds", 60)
	viper.SetDefault("storage.data_dir", "./data")

	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = viper.BindEnv("oauth.client_id", "OAUTH_CLIENT_ID")
	_ = viper.BindEnv("oauth.client_secret", "OAUTH_CLIENT_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)
}
