package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopmonkeyus/procure/internal/database"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, database.DriverPQ, cfg.Database.Driver)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultUploads, cfg.Uploads)
	assert.Equal(t, 5*time.Second, cfg.AuditDelay)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.False(t, cfg.ValidateInvoiceDate)
	err = cfg.Validate()
	assert.True(t, errors.Is(err, database.ErrMissingURL))
}

func TestEnvironment(t *testing.T) {
	t.Setenv("PROCURE_DATABASE_URL", "postgres://localhost/procure")
	t.Setenv("PROCURE_DATABASE_SSL", "true")
	t.Setenv("PROCURE_PORT", "8080")
	t.Setenv("PROCURE_AUDIT_DELAY", "1m")
	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, "postgres://localhost/procure", cfg.Database.URL)
	assert.True(t, cfg.Database.SSL)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, time.Minute, cfg.AuditDelay)
	assert.NoError(t, cfg.Validate())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("PROCURE_PORT", "8080")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int(KeyPort, DefaultPort, "")
	flags.String(KeyDatabaseURL, "", "")
	require.NoError(t, flags.Parse([]string{"--port", "9090", "--database-url", "postgres://db/procure"}))
	v := New()
	require.NoError(t, Bind(v, flags))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres://db/procure", cfg.Database.URL)
}

func TestConfigFile(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "procure.toml")
	require.NoError(t, os.WriteFile(fn, []byte(`
database-url = "postgres://file/procure"
database-driver = "pgx"
uploads = "s3://bucket/uploads"
validate-invoice-date = true
`), 0600))
	v := New()
	v.Set(KeyConfig, fn)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/procure", cfg.Database.URL)
	assert.Equal(t, database.DriverPGX, cfg.Database.Driver)
	assert.Equal(t, "s3://bucket/uploads", cfg.Uploads)
	assert.True(t, cfg.ValidateInvoiceDate)
	assert.NoError(t, cfg.Validate())

	v = New()
	v.Set(KeyConfig, filepath.Join(t.TempDir(), "missing.toml"))
	_, err = Load(v)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(New())
		require.NoError(t, err)
		cfg.Database.URL = "postgres://localhost/procure"
		return cfg
	}
	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "unsupported database driver: mysql")

	cfg = valid()
	cfg.Port = 0
	assert.ErrorContains(t, cfg.Validate(), "invalid port")

	cfg = valid()
	cfg.Uploads = ""
	assert.Error(t, cfg.Validate())

	cfg = valid()
	cfg.AuditDelay = -time.Second
	assert.Error(t, cfg.Validate())
}
