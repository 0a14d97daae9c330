package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadConfig_FileDefaultsAndEnv(t *testing.T) {
	p := writeConfig(t, `
server:
  port: 9090
database:
  driver: memory
email:
  driver: log
verification:
  code_ttl: 5m
  max_attempts: 5
reconciler:
  enabled: true
  age_threshold: 45m
token:
  secret: `+testSecret+`
`)
	t.Setenv("INTAKE_PORT", "9191")
	t.Setenv("INTAKE_REDIS_ADDR", "localhost:6380")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Verification.CodeTTL.Duration)
	assert.Equal(t, 5, cfg.Verification.MaxAttempts)
	assert.Equal(t, 3, cfg.Verification.MaxResends)
	assert.Equal(t, 30*time.Second, cfg.Verification.ResendCooldown.Duration)
	assert.True(t, cfg.Reconciler.Enabled)
	assert.Equal(t, 45*time.Minute, cfg.Reconciler.AgeThreshold.Duration)
	assert.Equal(t, 1000, cfg.Reconciler.DeleteBatchSize)
	assert.Equal(t, "localhost:6380", cfg.Redis.Addr)
	assert.Equal(t, "./files", cfg.Files.RootDir)
	assert.Equal(t, 24*time.Hour, cfg.Token.TTL.Duration)
}

func TestLoadConfig_EnvSecrets(t *testing.T) {
	p := writeConfig(t, `
database:
  driver: postgres
email:
  driver: smtp
  smtp_host: smtp.example.com
  from_email: noreply@example.com
`)
	t.Setenv("INTAKE_DATABASE_URL", "postgres://intake@localhost/intake?sslmode=disable")
	t.Setenv("INTAKE_TOKEN_SECRET", testSecret)
	t.Setenv("INTAKE_SMTP_PASSWORD", "hunter2")

	cfg, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "postgres://intake@localhost/intake?sslmode=disable", cfg.Database.DSN)
	assert.Equal(t, testSecret, cfg.Token.Secret)
	assert.Equal(t, "hunter2", cfg.Email.SMTPPassword)
	assert.Equal(t, 587, cfg.Email.SMTPPort)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"unknown driver": `
database: {driver: mysql}
email: {driver: log}
token: {secret: ` + testSecret + `}
`,
		"postgres without url": `
database: {driver: postgres}
email: {driver: log}
token: {secret: ` + testSecret + `}
`,
		"short token secret": `
database: {driver: memory}
email: {driver: log}
token: {secret: short}
`,
		"resend without key": `
database: {driver: memory}
email: {driver: resend, from_email: a@example.com}
token: {secret: ` + testSecret + `}
`,
		"oversized delete batch": `
database: {driver: memory}
email: {driver: log}
reconciler: {delete_batch_size: 5000}
token: {secret: ` + testSecret + `}
`,
		"bad duration": `
database: {driver: memory}
verification: {code_ttl: soon}
`,
		"unknown field": `
database: {driver: memory, colour: blue}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv("INTAKE_CONFIG", "")
	t.Setenv("INTAKE_TOKEN_SECRET", testSecret)
	t.Setenv("INTAKE_DATABASE_URL", "postgres://localhost/intake")
	t.Setenv("INTAKE_PORT", "")
	// without a file the defaults apply, and the default smtp driver needs a host
	cfg, err := LoadConfig("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
	assert.Nil(t, cfg)
}
