package config

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/auditor"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variables, PROCURE_DATABASE_URL for the database-url key.
const EnvPrefix = "PROCURE"

const (
	KeyConfig              = "config"
	KeyDatabaseURL         = "database-url"
	KeyDatabaseDriver      = "database-driver"
	KeyDatabaseSSL         = "database-ssl"
	KeyMaxOpenConns        = "max-open-conns"
	KeyMaxIdleConns        = "max-idle-conns"
	KeyPort                = "port"
	KeyUploads             = "uploads"
	KeyDataDir             = "data-dir"
	KeyEventsURL           = "events-url"
	KeyEventsCreds         = "events-creds"
	KeyAuditDelay          = "audit-delay"
	KeyShutdownTimeout     = "shutdown-timeout"
	KeyValidateInvoiceDate = "validate-invoice-date"
)

const (
	DefaultPort            = 3000
	DefaultUploads         = "uploads"
	DefaultDataDir         = "."
	DefaultShutdownTimeout = 10 * time.Second
)

// Config is the resolved process configuration.
type Config struct {
	Database            database.Config
	Port                int
	Uploads             string
	DataDir             string
	EventsURL           string
	EventsCreds         string
	AuditDelay          time.Duration
	ShutdownTimeout     time.Duration
	ValidateInvoiceDate bool
}

// New returns a viper instance reading PROCURE_* environment variables with the defaults applied.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	v.SetDefault(KeyDatabaseDriver, database.DriverPQ)
	v.SetDefault(KeyMaxOpenConns, database.DefaultMaxOpenConns)
	v.SetDefault(KeyMaxIdleConns, database.DefaultMaxIdleConns)
	v.SetDefault(KeyPort, DefaultPort)
	v.SetDefault(KeyUploads, DefaultUploads)
	v.SetDefault(KeyDataDir, DefaultDataDir)
	v.SetDefault(KeyAuditDelay, auditor.DefaultDelay)
	v.SetDefault(KeyShutdownTimeout, DefaultShutdownTimeout)
	return v
}

// Bind binds the flags so an explicitly set flag overrides the environment and config file.
func Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	if err := v.BindPFlags(flags); err != nil {
		return errors.Wrap(err, "error binding flags")
	}
	return nil
}

// Load reads the optional config file named by the config key and returns the resolved config.
func Load(v *viper.Viper) (*Config, error) {
	if fn := v.GetString(KeyConfig); fn != "" {
		v.SetConfigFile(fn)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "error reading config file %s", fn)
		}
	}
	cfg := &Config{
		Database: database.Config{
			URL:          v.GetString(KeyDatabaseURL),
			Driver:       v.GetString(KeyDatabaseDriver),
			SSL:          v.GetBool(KeyDatabaseSSL),
			MaxOpenConns: v.GetInt(KeyMaxOpenConns),
			MaxIdleConns: v.GetInt(KeyMaxIdleConns),
		},
		Port:                v.GetInt(KeyPort),
		Uploads:             v.GetString(KeyUploads),
		DataDir:             v.GetString(KeyDataDir),
		EventsURL:           v.GetString(KeyEventsURL),
		EventsCreds:         v.GetString(KeyEventsCreds),
		AuditDelay:          v.GetDuration(KeyAuditDelay),
		ShutdownTimeout:     v.GetDuration(KeyShutdownTimeout),
		ValidateInvoiceDate: v.GetBool(KeyValidateInvoiceDate),
	}
	return cfg, nil
}

// Validate checks the config for values the process cannot start with.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.Mark(errors.New("database url is required, set --database-url or PROCURE_DATABASE_URL"), database.ErrMissingURL)
	}
	switch c.Database.Driver {
	case database.DriverPQ, database.DriverPGX:
	default:
		return errors.Newf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return errors.Newf("invalid port: %d", c.Port)
	}
	if c.Uploads == "" {
		return errors.New("uploads location is required")
	}
	if c.AuditDelay < 0 {
		return errors.Newf("invalid audit delay: %s", c.AuditDelay)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.Newf("invalid shutdown timeout: %s", c.ShutdownTimeout)
	}
	return nil
}
