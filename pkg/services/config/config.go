package config

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/de-tools/storage-audit/pkg/models/domain"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "STORAGE_AUDIT"

type Config struct {
	Bucket             string `mapstructure:"bucket" validate:"required"`
	Region             string `mapstructure:"region" validate:"required"`
	BasePrefix         string `mapstructure:"base-prefix" validate:"required"`
	Statuses           string `mapstructure:"statuses" validate:"required"`
	IncludeNotInPass   bool   `mapstructure:"include-not-in-pass"`
	ComputeBucketTotal bool   `mapstructure:"compute-whole-bucket-total"`
	PersistInSummary   bool   `mapstructure:"persist-in-summary"`
	RunID              string `mapstructure:"run-id" validate:"omitempty,uuid"`

	DBHost    string `mapstructure:"db-host" validate:"required"`
	DBPort    int    `mapstructure:"db-port" validate:"min=1,max=65535"`
	DBName    string `mapstructure:"db-name" validate:"required"`
	DBUser    string `mapstructure:"db-user"`
	DBSSLMode string `mapstructure:"db-sslmode" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	OutputSchema string `mapstructure:"output-schema" validate:"required,ident"`
	OutputTable  string `mapstructure:"output-table" validate:"required,ident"`

	TenantTable        string `mapstructure:"tenant-table" validate:"required,qualified_ident"`
	TenantIDColumn     string `mapstructure:"tenant-id-column" validate:"required,ident"`
	TenantStatusColumn string `mapstructure:"tenant-status-column" validate:"required,ident"`

	AWSProfile  string `mapstructure:"aws-profile"`
	S3Endpoint  string `mapstructure:"s3-endpoint" validate:"omitempty,url"`
	S3AccessKey string `mapstructure:"s3-access-key" validate:"required_with=S3SecretKey"`
	S3SecretKey string `mapstructure:"s3-secret-key" validate:"required_with=S3AccessKey"`

	CredentialsFile string `mapstructure:"credentials-file" validate:"omitempty,file"`
	NoPrompt        bool   `mapstructure:"no-prompt"`
	Migrate         bool   `mapstructure:"migrate"`

	LogFile  string `mapstructure:"log-file"`
	LogLevel string `mapstructure:"log-level" validate:"oneof=trace debug info warn error"`
}

var (
	identRegex          = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	qualifiedIdentRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("mapstructure")
	})
	_ = v.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identRegex.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("qualified_ident", func(fl validator.FieldLevel) bool {
		return qualifiedIdentRegex.MatchString(fl.Field().String())
	})
	return v
}

// RegisterFlags declares every audit parameter on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML, TOML or JSON config file")

	fs.String("bucket", "", "S3 bucket to audit")
	fs.String("region", "", "AWS region of the bucket")
	fs.String("base-prefix", "", "Key prefix under which tenant prefixes live")
	fs.String("statuses", "", "Comma-separated tenant statuses to audit, e.g. Y,B")
	fs.Bool("include-not-in-pass", false, "Also audit tenants whose status is not in --statuses")
	fs.Bool("compute-whole-bucket-total", false, "Also scan the whole bucket")
	fs.Bool("persist-in-summary", false, "Persist the SUMMARY row of the IN pass")
	fs.String("run-id", "", "Run identifier (UUID); generated when empty")

	fs.String("db-host", "", "Database host")
	fs.Int("db-port", 5432, "Database port")
	fs.String("db-name", "", "Database name")
	fs.String("db-user", "", "Database user")
	fs.String("db-sslmode", "prefer", "Database sslmode")

	fs.String("output-schema", "", "Schema of the usage table")
	fs.String("output-table", "", "Usage table name")

	fs.String("tenant-table", "tenants", "Tenant table, optionally schema-qualified")
	fs.String("tenant-id-column", "tenant_id", "Tenant id column")
	fs.String("tenant-status-column", "status", "Tenant status column")

	fs.String("aws-profile", "", "Shared AWS config profile")
	fs.String("s3-endpoint", "", "Custom S3 endpoint for S3-compatible stores")
	fs.String("s3-access-key", "", "Static S3 access key")
	fs.String("s3-secret-key", "", "Static S3 secret key")

	fs.String("credentials-file", "", "Ini file with database credentials per host")
	fs.Bool("no-prompt", false, "Never prompt for the database password")
	fs.Bool("migrate", false, "Create the output schema and table when missing")

	fs.String("log-file", "", "Append logs to this file in addition to stderr")
	fs.String("log-level", "info", "Log level: trace, debug, info, warn, error")
}

// Load resolves the configuration from flags, STORAGE_AUDIT_* environment variables and an
// optional config file, in that order of precedence, then validates it.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("read config file %s: %v", path, err)}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, &domain.ConfigurationError{Reason: fmt.Sprintf("parse config: %v", err)}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	err := validate.Struct(c)

	var verrs validator.ValidationErrors
	if err != nil && !errors.As(err, &verrs) {
		return &domain.ConfigurationError{Reason: err.Error()}
	}

	var missing, invalid []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_with":
			missing = append(missing, fe.Field())
		default:
			invalid = append(invalid, fe.Field())
		}
	}

	if !slices.Contains(missing, "statuses") && c.Statuses != "" && len(c.StatusList()) == 0 {
		missing = append(missing, "statuses")
	}

	if len(missing) > 0 {
		return &domain.ConfigurationError{Fields: missing}
	}
	if len(invalid) > 0 {
		return &domain.ConfigurationError{Reason: "invalid parameters", Fields: invalid}
	}
	return nil
}

// StatusList splits the statuses parameter on commas, trimming blanks and dropping empties.
func (c *Config) StatusList() []string {
	var out []string
	for _, s := range strings.Split(c.Statuses, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
