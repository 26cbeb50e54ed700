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
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName            string
		Env                string // DEV (local; default), TEST, QA, PROD
		Build              string
		Debug              bool
		TestMode           bool
		SecretKey          string
		SiteURL            string
		AllowedEmailDomain string
		DefaultFromEmail   mail.Address
		SendgridApiKey     string
		RollbarToken       string

		Server   ServerConfig
		Database DatabaseConfig
		Admin    AdminConfig
		Jobs     JobsConfig
	}

	ServerConfig struct {
		Host                   string
		Addr                   string
		DebugAddr              string
		ReadTimeout            time.Duration
		WriteTimeout           time.Duration
		ShutdownTimeout        time.Duration
		SessionExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	AdminConfig struct {
		Username      string
		Password      string
		CookieSecret  string
		SessionMaxAge time.Duration
		NotifyEmail   string
	}

	JobsConfig struct {
		Enabled             bool
		AutoCloseSpec       string
		AutoCloseResolvedAt time.Duration
		DigestSpec          string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from the environment, optionally seeded by config/.env.<env>.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, env)

	return &Config{
		AppName:            v.GetString("app_name"),
		Env:                env,
		Build:              v.GetString("build"),
		Debug:              v.GetBool("debug"),
		TestMode:           env == "TEST",
		SecretKey:          v.GetString("secret_key"),
		SiteURL:            strings.TrimRight(v.GetString("site_url"), "/"),
		AllowedEmailDomain: v.GetString("allowed_email_domain"),
		DefaultFromEmail:   mail.Address{Name: v.GetString("app_name"), Address: v.GetString("default_from_email")},
		SendgridApiKey:     v.GetString("sendgrid_api_key"),
		RollbarToken:       v.GetString("rollbar_token"),
		Server: ServerConfig{
			Host:                   v.GetString("server.host"),
			Addr:                   v.GetString("server.addr"),
			DebugAddr:              v.GetString("server.debug_addr"),
			ReadTimeout:            v.GetDuration("server.read_timeout"),
			WriteTimeout:           v.GetDuration("server.write_timeout"),
			ShutdownTimeout:        v.GetDuration("server.shutdown_timeout"),
			SessionExpirationDelta: v.GetDuration("server.session_expiration_delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetString("db.port"),
			Name:          v.GetString("db.name"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.admin_user"),
			AdminPassword: v.GetString("db.admin_password"),
			DisableTLS:    v.GetBool("db.disable_tls"),
			Path:          v.GetString("db.path"),
		},
		Admin: AdminConfig{
			Username:      v.GetString("admin.username"),
			Password:      v.GetString("admin.password"),
			CookieSecret:  v.GetString("admin.cookie_secret"),
			SessionMaxAge: v.GetDuration("admin.session_max_age"),
			NotifyEmail:   v.GetString("admin.notify_email"),
		},
		Jobs: JobsConfig{
			Enabled:             v.GetBool("jobs.enabled"),
			AutoCloseSpec:       v.GetString("jobs.autoclose_spec"),
			AutoCloseResolvedAt: v.GetDuration("jobs.autoclose_after"),
			DigestSpec:          v.GetString("jobs.digest_spec"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("app_name", "Rate My Teacher BIPH")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("secret_key", "dev-)f1k*x6rz#t@8m!c2w0q^hg4p7=bd&nyo5e3j9$uvl")
	v.SetDefault("site_url", "http://localhost:8000")
	v.SetDefault("allowed_email_domain", "@basischina.com")
	v.SetDefault("default_from_email", "noreply@localhost")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debug_addr", ":4000")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.session_expiration_delta", 7*24*time.Hour)

	v.SetDefault("db.engine", "sqlite")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "ratemyteacher")
	v.SetDefault("db.disable_tls", true)
	v.SetDefault("db.path", "ratemyteacher.db")

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "")
	v.SetDefault("admin.cookie_secret", "")
	v.SetDefault("admin.session_max_age", 7*24*time.Hour)
	v.SetDefault("admin.notify_email", "")

	v.SetDefault("jobs.enabled", env != "TEST")
	v.SetDefault("jobs.autoclose_spec", "@hourly")
	v.SetDefault("jobs.autoclose_after", 14*24*time.Hour)
	v.SetDefault("jobs.digest_spec", "0 7 * * *")
}

// Validate reports settings the server cannot run without.
func (c *Config) Validate() error {
	if c.Admin.CookieSecret == "" {
		return fmt.Errorf("missing configuration: %s_ADMIN_COOKIE_SECRET", c.Env)
	}
	if c.Admin.Password == "" {
		return fmt.Errorf("missing configuration: %s_ADMIN_PASSWORD", c.Env)
	}
	if !c.Debug && c.SendgridApiKey == "" {
		return fmt.Errorf("missing configuration: %s_SENDGRID_API_KEY", c.Env)
	}
	return nil
}
