// Package config builds the per-function configuration once at process start.
// Values come from the environment (viper AutomaticEnv) and are validated with
// struct tags before any handler is constructed.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"workshop-functions/internal/apperr"
)

var validate = validator.New()

// Common settings shared by every function.
type Common struct {
	Environment      string `validate:"required"`
	LogLevel         string
	Region           string
	MetricsNamespace string
}

// DBRef points at a relational database. Credentials always come from the secret;
// Host/Name/Port override whatever the secret document carries.
type DBRef struct {
	SecretID string `validate:"required"`
	Host     string
	Name     string
	Port     int `validate:"gte=0,lte=65535"`
}

type Extract struct {
	Common
	Source   DBRef
	Bucket   string `validate:"required"`
	Prefix   string
	Timezone string `validate:"required"`
}

type Load struct {
	Common
	Target      DBRef
	MaxAttempts int           `validate:"gte=1,lte=10"`
	BaseDelay   time.Duration `validate:"gt=0"`
}

type DBInit struct {
	Common
	Source DBRef
	Target DBRef
}

// Webhook is satisfied by either a literal URL or an SSM parameter name holding it.
type Webhook struct {
	URL       string `validate:"required_without=Parameter,omitempty,url"`
	Parameter string `validate:"required_without=URL"`
}

type Notifier struct {
	Common
	Webhook              Webhook
	LogGroupName         string `validate:"required"`
	SuppressEnvironments []string
	SuppressWindow       time.Duration `validate:"gt=0"`
}

// SuppressionEnabled reports whether repeat suppression applies to this environment.
func (n *Notifier) SuppressionEnabled() bool {
	for _, env := range n.SuppressEnvironments {
		if env == n.Environment {
			return true
		}
	}
	return false
}

type Alarm struct {
	Common
	Webhook Webhook
}

type PutItem struct {
	Common
	TableName string `validate:"required"`
}

type RDS struct {
	Common
	DB     DBRef
	Bucket string
	Table  string `validate:"required"`
	Format string `validate:"oneof=csv parquet"`
	Prefix string
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("ENVIRONMENT", "dev")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("AWS_REGION", "ap-northeast-1")
	return v
}

func loadCommon(v *viper.Viper) Common {
	return Common{
		Environment:      strings.TrimSpace(v.GetString("ENVIRONMENT")),
		LogLevel:         strings.TrimSpace(v.GetString("LOG_LEVEL")),
		Region:           strings.TrimSpace(v.GetString("AWS_REGION")),
		MetricsNamespace: strings.TrimSpace(v.GetString("METRICS_NAMESPACE")),
	}
}

func loadDBRef(v *viper.Viper, prefix string) DBRef {
	return DBRef{
		SecretID: strings.TrimSpace(v.GetString(prefix + "_SECRET_ARN")),
		Host:     strings.TrimSpace(v.GetString(prefix + "_HOST")),
		Name:     strings.TrimSpace(v.GetString(prefix + "_NAME")),
		Port:     v.GetInt(prefix + "_PORT"),
	}
}

func loadWebhook(v *viper.Viper) Webhook {
	return Webhook{
		URL:       strings.TrimSpace(v.GetString("SLACK_WEBHOOK_URL")),
		Parameter: strings.TrimSpace(v.GetString("SLACK_WEBHOOK_PARAMETER")),
	}
}

// Env:
// - SOURCE_DB_SECRET_ARN (required), SOURCE_DB_HOST, SOURCE_DB_NAME, SOURCE_DB_PORT
// - S3_BUCKET (required)
// - ETL_PREFIX (default "etl-data/")
// - ETL_TIMEZONE (default "UTC")
func LoadExtract() (*Extract, error) {
	v := newViper()
	v.SetDefault("ETL_PREFIX", "etl-data/")
	v.SetDefault("ETL_TIMEZONE", "UTC")

	cfg := &Extract{
		Common:   loadCommon(v),
		Source:   loadDBRef(v, "SOURCE_DB"),
		Bucket:   strings.TrimSpace(v.GetString("S3_BUCKET")),
		Prefix:   strings.TrimSpace(v.GetString("ETL_PREFIX")),
		Timezone: strings.TrimSpace(v.GetString("ETL_TIMEZONE")),
	}
	if err := check(cfg); err != nil {
		return nil, err
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, apperr.Config(fmt.Sprintf("load timezone %s", cfg.Timezone), err)
	}
	return cfg, nil
}

// Env:
// - TARGET_DB_SECRET_ARN (required), TARGET_DB_HOST, TARGET_DB_NAME, TARGET_DB_PORT
// - S3_READ_MAX_ATTEMPTS (default 3)
// - S3_READ_BASE_DELAY (default "1s")
func LoadLoad() (*Load, error) {
	v := newViper()
	v.SetDefault("S3_READ_MAX_ATTEMPTS", 3)
	v.SetDefault("S3_READ_BASE_DELAY", "1s")

	cfg := &Load{
		Common:      loadCommon(v),
		Target:      loadDBRef(v, "TARGET_DB"),
		MaxAttempts: v.GetInt("S3_READ_MAX_ATTEMPTS"),
		BaseDelay:   v.GetDuration("S3_READ_BASE_DELAY"),
	}
	return cfg, check(cfg)
}

func LoadDBInit() (*DBInit, error) {
	v := newViper()
	cfg := &DBInit{
		Common: loadCommon(v),
		Source: loadDBRef(v, "SOURCE_DB"),
		Target: loadDBRef(v, "TARGET_DB"),
	}
	return cfg, check(cfg)
}

// Env:
// - SLACK_WEBHOOK_URL or SLACK_WEBHOOK_PARAMETER (one required)
// - LOG_GROUP_NAME (required)
// - SUPPRESS_REPEATS_ENVIRONMENTS (default "test", comma separated)
// - SUPPRESS_REPEATS_WINDOW (default "30m")
func LoadNotifier() (*Notifier, error) {
	v := newViper()
	v.SetDefault("SUPPRESS_REPEATS_ENVIRONMENTS", "test")
	v.SetDefault("SUPPRESS_REPEATS_WINDOW", "30m")

	cfg := &Notifier{
		Common:               loadCommon(v),
		Webhook:              loadWebhook(v),
		LogGroupName:         strings.TrimSpace(v.GetString("LOG_GROUP_NAME")),
		SuppressEnvironments: splitList(v.GetString("SUPPRESS_REPEATS_ENVIRONMENTS")),
		SuppressWindow:       v.GetDuration("SUPPRESS_REPEATS_WINDOW"),
	}
	return cfg, check(cfg)
}

func LoadAlarm() (*Alarm, error) {
	v := newViper()
	cfg := &Alarm{
		Common:  loadCommon(v),
		Webhook: loadWebhook(v),
	}
	return cfg, check(cfg)
}

func LoadPutItem() (*PutItem, error) {
	v := newViper()
	cfg := &PutItem{
		Common:    loadCommon(v),
		TableName: strings.TrimSpace(v.GetString("TABLE_NAME")),
	}
	return cfg, check(cfg)
}

// Env:
// - DB_SECRET_ARN (required), DB_HOST, DB_NAME, DB_PORT
// - S3_BUCKET_NAME (required by rds-export only)
// - EXPORT_TABLE (default "users"), EXPORT_FORMAT (default "csv"), EXPORT_PREFIX (default "exports/")
func LoadRDS() (*RDS, error) {
	v := newViper()
	v.SetDefault("EXPORT_TABLE", "users")
	v.SetDefault("EXPORT_FORMAT", "csv")
	v.SetDefault("EXPORT_PREFIX", "exports/")

	cfg := &RDS{
		Common: loadCommon(v),
		DB:     loadDBRef(v, "DB"),
		Bucket: strings.TrimSpace(v.GetString("S3_BUCKET_NAME")),
		Table:  strings.TrimSpace(v.GetString("EXPORT_TABLE")),
		Format: strings.ToLower(strings.TrimSpace(v.GetString("EXPORT_FORMAT"))),
		Prefix: strings.TrimSpace(v.GetString("EXPORT_PREFIX")),
	}
	return cfg, check(cfg)
}

func check(cfg any) error {
	if err := validate.Struct(cfg); err != nil {
		return apperr.Config("invalid configuration", err)
	}
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
