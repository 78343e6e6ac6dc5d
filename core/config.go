package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

const devSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		AppName          string
		Debug            bool
		TestMode         bool
		SecretKey        string
		RollbarToken     string
		SendgridAPIKey   string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string

		Server      ServerConfig
		Database    DatabaseConfig
		Fees        FeesConfig
		Redis       RedisConfig
		Idempotency IdempotencyConfig
		Mail        MailConfig
	}

	ServerConfig struct {
		Host               string
		Address            string
		DebugAddress       string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
		DisableRequestLogs bool
	}

	DatabaseConfig struct {
		Engine           string
		Host             string
		Port             string
		Name             string
		User             string
		Password         string
		AdminUser        string
		AdminPassword    string
		DisableTLS       bool
		MaxOpenConns     int
		MaxIdleConns     int
		StatementTimeout time.Duration
	}

	FeesConfig struct {
		DefaultPaymentMethod string
		// LockNamespace is the first key of the advisory lock taken per parent while allocating.
		LockNamespace int
	}

	RedisConfig struct {
		Address  string // empty: idempotency keys are kept in memory
		Password string
		DB       int
	}

	IdempotencyConfig struct {
		TTL time.Duration
	}

	MailConfig struct {
		BreakerTimeout     time.Duration
		BreakerMaxFailures int
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig reads the configuration of the current ENV from defaults, `config/.env.<env>` and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Masomo")
	v.SetDefault("secretKey", devSecretKey)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("frontendBaseUrl", "http://localhost:8080")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugAddress", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.disableRequestLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "masomo")
	v.SetDefault("database.user", "masomo")
	v.SetDefault("database.password", "masomo")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.statementTimeout", 30*time.Second)

	v.SetDefault("fees.defaultPaymentMethod", "cash")
	v.SetDefault("fees.lockNamespace", 7311)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("mail.breakerTimeout", time.Minute)
	v.SetDefault("mail.breakerMaxFailures", 5)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	conf := &Config{
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		SendgridAPIKey:   v.GetString("sendgridApiKey"),
		DefaultFromEmail: *fromEmail,
		FrontendBaseURL:  v.GetString("frontendBaseUrl"),
		Server: ServerConfig{
			Host:               v.GetString("server.host"),
			Address:            v.GetString("server.address"),
			DebugAddress:       v.GetString("server.debugAddress"),
			ShutdownTimeout:    v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta: v.GetDuration("server.jwtExpirationDelta"),
			DisableRequestLogs: v.GetBool("server.disableRequestLogs"),
		},
		Database: DatabaseConfig{
			Engine:           v.GetString("database.engine"),
			Host:             v.GetString("database.host"),
			Port:             v.GetString("database.port"),
			Name:             v.GetString("database.name"),
			User:             v.GetString("database.user"),
			Password:         v.GetString("database.password"),
			AdminUser:        v.GetString("database.adminUser"),
			AdminPassword:    v.GetString("database.adminPassword"),
			DisableTLS:       v.GetBool("database.disableTLS"),
			MaxOpenConns:     v.GetInt("database.maxOpenConns"),
			MaxIdleConns:     v.GetInt("database.maxIdleConns"),
			StatementTimeout: v.GetDuration("database.statementTimeout"),
		},
		Fees: FeesConfig{
			DefaultPaymentMethod: v.GetString("fees.defaultPaymentMethod"),
			LockNamespace:        v.GetInt("fees.lockNamespace"),
		},
		Redis: RedisConfig{
			Address:  v.GetString("redis.address"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Idempotency: IdempotencyConfig{
			TTL: v.GetDuration("idempotency.ttl"),
		},
		Mail: MailConfig{
			BreakerTimeout:     v.GetDuration("mail.breakerTimeout"),
			BreakerMaxFailures: v.GetInt("mail.breakerMaxFailures"),
		},
	}
	if err = conf.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	return conf
}

// Validate checks the preconditions the rest of the app relies on.
func (conf *Config) Validate() error {
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.AppName, "appName"),
		vala.StringNotEmpty(conf.SecretKey, "secretKey"),
		vala.StringNotEmpty(conf.Fees.DefaultPaymentMethod, "fees.defaultPaymentMethod"),
		vala.GreaterThan(conf.Database.MaxOpenConns, 0, "database.maxOpenConns"),
		vala.GreaterThan(conf.Database.MaxIdleConns, -1, "database.maxIdleConns"),
		vala.GreaterThan(conf.Mail.BreakerMaxFailures, 0, "mail.breakerMaxFailures"),
		vala.Not(vala.Equals(conf.Fees.LockNamespace, 0, "fees.lockNamespace")),
		conf.prodSecretChecker(),
	).Check()
}

// prodSecretChecker rejects the development secret key outside of DEV & TEST.
func (conf *Config) prodSecretChecker() vala.Checker {
	return func() (bool, string) {
		if conf.Env == "DEV" || conf.Env == "TEST" || conf.SecretKey != devSecretKey {
			return true, ""
		}
		return false, fmt.Sprintf("secretKey: the development key cannot be used in %s", conf.Env)
	}
}
