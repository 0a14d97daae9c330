package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultPath = "config/config.yaml"

// Duration reads Go duration strings ("30s", "10m") from YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	Migrate      bool   `yaml:"migrate"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmailConfig struct {
	// Driver is "smtp", "resend" or "log".
	Driver       string `yaml:"driver"`
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	ResendAPIKey string `yaml:"resend_api_key"`
	FromEmail    string `yaml:"from_email"`
}

type VerificationConfig struct {
	CodeLength     int      `yaml:"code_length"`
	CodeTTL        Duration `yaml:"code_ttl"`
	MaxAttempts    int      `yaml:"max_attempts"`
	MaxResends     int      `yaml:"max_resends"`
	ResendCooldown Duration `yaml:"resend_cooldown"`
	BcryptCost     int      `yaml:"bcrypt_cost"`
	DigestKey      string   `yaml:"digest_key"`
}

type FilesConfig struct {
	RootDir        string `yaml:"root_dir"`
	UploadPrefix   string `yaml:"upload_prefix"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

type ReconcilerConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Interval          Duration `yaml:"interval"`
	AgeThreshold      Duration `yaml:"age_threshold"`
	RunTimeout        Duration `yaml:"run_timeout"`
	MaxPrefixesPerRun int      `yaml:"max_prefixes_per_run"`
	DeleteBatchSize   int      `yaml:"delete_batch_size"`
	PurgeIdleSessions bool     `yaml:"purge_idle_sessions"`
}

type TokenConfig struct {
	Secret string   `yaml:"secret"`
	TTL    Duration `yaml:"ttl"`
}

// QuotaConfig limits requests per client IP and window. Zero disables a scope.
type QuotaConfig struct {
	Window        Duration `yaml:"window"`
	IssueLimit    int      `yaml:"issue_limit"`
	VerifyLimit   int      `yaml:"verify_limit"`
	FailOpenOnErr bool     `yaml:"fail_open"`
}

type AdminConfig struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Email        EmailConfig        `yaml:"email"`
	Verification VerificationConfig `yaml:"verification"`
	Files        FilesConfig        `yaml:"files"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Token        TokenConfig        `yaml:"token"`
	Quota        QuotaConfig        `yaml:"quota"`
	Admin        AdminConfig        `yaml:"admin"`
}

// LoadConfig reads the YAML file at path (INTAKE_CONFIG or config/config.yaml
// when empty), applies .env and INTAKE_* overrides, fills defaults and validates.
// A missing default file is not an error; everything can come from the environment.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = os.Getenv("INTAKE_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = defaultPath
	}

	var cfg Config
	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		log.Printf("[config] %s not found, using defaults and environment", path)
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Database.DSN, "INTAKE_DATABASE_URL")
	setString(&c.Email.SMTPPassword, "INTAKE_SMTP_PASSWORD")
	setString(&c.Email.ResendAPIKey, "INTAKE_RESEND_API_KEY")
	setString(&c.Token.Secret, "INTAKE_TOKEN_SECRET")
	setString(&c.Redis.Addr, "INTAKE_REDIS_ADDR")
	setString(&c.Redis.Password, "INTAKE_REDIS_PASSWORD")
	setString(&c.Admin.Password, "INTAKE_ADMIN_PASSWORD")
	setString(&c.Verification.DigestKey, "INTAKE_DIGEST_KEY")
	if v := os.Getenv("INTAKE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("INTAKE_PORT: %w", err)
		}
		c.Server.Port = port
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	defaultDuration(&c.Server.ReadTimeout, 10*time.Second)
	defaultDuration(&c.Server.WriteTimeout, 30*time.Second)
	defaultDuration(&c.Server.ShutdownTimeout, 15*time.Second)

	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}

	if c.Email.Driver == "" {
		c.Email.Driver = "smtp"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}

	v := &c.Verification
	if v.CodeLength == 0 {
		v.CodeLength = 6
	}
	defaultDuration(&v.CodeTTL, 10*time.Minute)
	if v.MaxAttempts == 0 {
		v.MaxAttempts = 3
	}
	if v.MaxResends == 0 {
		v.MaxResends = 3
	}
	defaultDuration(&v.ResendCooldown, 30*time.Second)
	if v.BcryptCost == 0 {
		v.BcryptCost = 10
	}

	if c.Files.RootDir == "" {
		c.Files.RootDir = "./files"
	}
	if c.Files.UploadPrefix == "" {
		c.Files.UploadPrefix = "uploads/"
	}
	if c.Files.MaxUploadBytes == 0 {
		c.Files.MaxUploadBytes = 10 << 20
	}

	r := &c.Reconciler
	defaultDuration(&r.Interval, 10*time.Minute)
	defaultDuration(&r.AgeThreshold, 30*time.Minute)
	defaultDuration(&r.RunTimeout, 2*time.Minute)
	if r.MaxPrefixesPerRun == 0 {
		r.MaxPrefixesPerRun = 500
	}
	if r.DeleteBatchSize == 0 {
		r.DeleteBatchSize = 1000
	}

	defaultDuration(&c.Token.TTL, 24*time.Hour)
	defaultDuration(&c.Quota.Window, time.Minute)
	if c.Admin.User == "" {
		c.Admin.User = "admin"
	}
}

func defaultDuration(d *Duration, v time.Duration) {
	if d.Duration == 0 {
		d.Duration = v
	}
}

// Validate checks the loaded configuration. Secrets are only required by the
// drivers that use them.
func (c *Config) Validate() error {
	dsn := []validation.Rule{}
	if c.Database.Driver == "postgres" {
		dsn = append(dsn, validation.Required)
	}
	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required, validation.In("postgres", "memory")),
		validation.Field(&c.Database.DSN, dsn...),
		validation.Field(&c.Database.MaxOpenConns, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	smtpHost, resendKey := []validation.Rule{}, []validation.Rule{}
	switch c.Email.Driver {
	case "smtp":
		smtpHost = append(smtpHost, validation.Required)
	case "resend":
		resendKey = append(resendKey, validation.Required)
	}
	from := []validation.Rule{}
	if c.Email.Driver != "log" {
		from = append(from, validation.Required)
	}
	if err := validation.ValidateStruct(&c.Email,
		validation.Field(&c.Email.Driver, validation.Required, validation.In("smtp", "resend", "log")),
		validation.Field(&c.Email.SMTPHost, smtpHost...),
		validation.Field(&c.Email.SMTPPort, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.Email.ResendAPIKey, resendKey...),
		validation.Field(&c.Email.FromEmail, from...),
	); err != nil {
		return fmt.Errorf("email: %w", err)
	}

	if err := validation.ValidateStruct(&c.Verification,
		validation.Field(&c.Verification.CodeLength, validation.Min(4), validation.Max(10)),
		validation.Field(&c.Verification.CodeTTL, validation.By(positive)),
		validation.Field(&c.Verification.MaxAttempts, validation.Min(1)),
		validation.Field(&c.Verification.MaxResends, validation.Min(0)),
		validation.Field(&c.Verification.ResendCooldown, validation.By(positive)),
		validation.Field(&c.Verification.BcryptCost, validation.Min(4), validation.Max(31)),
		validation.Field(&c.Verification.DigestKey, validation.Length(0, 64)),
	); err != nil {
		return fmt.Errorf("verification: %w", err)
	}

	if err := validation.ValidateStruct(&c.Reconciler,
		validation.Field(&c.Reconciler.Interval, validation.By(positive)),
		validation.Field(&c.Reconciler.AgeThreshold, validation.By(positive)),
		validation.Field(&c.Reconciler.RunTimeout, validation.By(positive)),
		validation.Field(&c.Reconciler.MaxPrefixesPerRun, validation.Min(1)),
		validation.Field(&c.Reconciler.DeleteBatchSize, validation.Min(1), validation.Max(1000)),
	); err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}

	if err := validation.ValidateStruct(&c.Token,
		validation.Field(&c.Token.Secret, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Token.TTL, validation.By(positive)),
	); err != nil {
		return fmt.Errorf("token: %w", err)
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Server, validation.By(func(interface{}) error {
			if c.Server.Port < 1 || c.Server.Port > 65535 {
				return errors.New("port must be between 1 and 65535")
			}
			return nil
		})),
		validation.Field(&c.Files, validation.By(func(interface{}) error {
			if c.Files.MaxUploadBytes <= 0 {
				return errors.New("max_upload_bytes must be positive")
			}
			return nil
		})),
		validation.Field(&c.Quota, validation.By(func(interface{}) error {
			if c.Quota.IssueLimit < 0 || c.Quota.VerifyLimit < 0 {
				return errors.New("limits must not be negative")
			}
			return nil
		})),
	)
}

func positive(value interface{}) error {
	d, ok := value.(Duration)
	if !ok {
		return errors.New("must be a duration")
	}
	if d.Duration <= 0 {
		return errors.New("must be positive")
	}
	return nil
}
