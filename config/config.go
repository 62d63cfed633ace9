/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/namecard/model"
)

const (
	DEFAULT_PORT            = "5001"
	DEFAULT_MONITORING_PORT = "5004"
	DEFAULT_UPLOAD_QUEUE    = "upload_image"
)

// Upload backends. "auto" picks the durable queue when redis answers at startup.
const (
	UploadBackendAuto      = "auto"
	UploadBackendQueue     = "queue"
	UploadBackendInProcess = "inprocess"
)

// Quota failure policies applied when the store cannot be reached.
const (
	QuotaFailOpen   = "open"
	QuotaFailClosed = "closed"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"NAMECARD_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"NAMECARD_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"NAMECARD_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"NAMECARD_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"NAMECARD_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"NAMECARD_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"NAMECARD_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"NAMECARD_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"NAMECARD_REDIS_SKIP_TLS_VERIFY"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"NAMECARD_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"NAMECARD_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"NAMECARD_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"NAMECARD_SLACK_WEBHOOK_URL"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

// StoreConfig covers the shared key-value store and its in-memory fallback.
type StoreConfig struct {
	TimeoutMs          int `json:"timeout_ms" envconfig:"NAMECARD_STORE_TIMEOUT_MS"`
	BreakerFailures    int `json:"breaker_failures" envconfig:"NAMECARD_STORE_BREAKER_FAILURES"`
	BreakerCooldownSec int `json:"breaker_cooldown_sec" envconfig:"NAMECARD_STORE_BREAKER_COOLDOWN_SEC"`
	JanitorIntervalSec int `json:"janitor_interval_sec" envconfig:"NAMECARD_STORE_JANITOR_INTERVAL_SEC"`
}

type TenantCacheConfig struct {
	TTLSec int `json:"ttl_sec" envconfig:"NAMECARD_TENANT_CACHE_TTL_SEC"`
	Size   int `json:"size" envconfig:"NAMECARD_TENANT_CACHE_SIZE"`
}

type QuotaConfig struct {
	FailPolicy string `json:"fail_policy" envconfig:"NAMECARD_QUOTA_FAIL_POLICY"`
	Timezone   string `json:"timezone" envconfig:"NAMECARD_QUOTA_TIMEZONE"`
}

type SessionConfig struct {
	TTLHours int `json:"ttl_hours" envconfig:"NAMECARD_SESSION_TTL_HOURS"`
}

// SecurityConfig drives the abuse heuristic and inbound image checks.
type SecurityConfig struct {
	AbuseLimit       int   `json:"abuse_limit" envconfig:"NAMECARD_SECURITY_ABUSE_LIMIT"`
	AbuseWindowSec   int   `json:"abuse_window_sec" envconfig:"NAMECARD_SECURITY_ABUSE_WINDOW_SEC"`
	BlockDurationMin int   `json:"block_duration_min" envconfig:"NAMECARD_SECURITY_BLOCK_DURATION_MIN"`
	MaxImageBytes    int64 `json:"max_image_bytes" envconfig:"NAMECARD_SECURITY_MAX_IMAGE_BYTES"`
	VerifySignature  bool  `json:"verify_signature" envconfig:"NAMECARD_SECURITY_VERIFY_SIGNATURE"`
}

type UploadConfig struct {
	Backend        string `json:"backend" envconfig:"NAMECARD_UPLOAD_BACKEND"`
	Queue          string `json:"queue" envconfig:"NAMECARD_UPLOAD_QUEUE"`
	MaxAttempts    int    `json:"max_attempts" envconfig:"NAMECARD_UPLOAD_MAX_ATTEMPTS"`
	RetryDelaysSec []int  `json:"retry_delays_sec" envconfig:"NAMECARD_UPLOAD_RETRY_DELAYS_SEC"`
	TimeoutSec     int    `json:"timeout_sec" envconfig:"NAMECARD_UPLOAD_TIMEOUT_SEC"`
	LedgerTTLDays  int    `json:"ledger_ttl_days" envconfig:"NAMECARD_UPLOAD_LEDGER_TTL_DAYS"`
	BufferSize     int    `json:"buffer_size" envconfig:"NAMECARD_UPLOAD_BUFFER_SIZE"`
	Concurrency    int    `json:"concurrency" envconfig:"NAMECARD_UPLOAD_CONCURRENCY"`
	MonitoringPort string `json:"monitoring_port" envconfig:"NAMECARD_UPLOAD_MONITORING_PORT"`
}

type RecognizerConfig struct {
	URL        string `json:"url" envconfig:"NAMECARD_RECOGNIZER_URL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"NAMECARD_RECOGNIZER_TIMEOUT_SEC"`
}

type DocumentStoreConfig struct {
	URL        string `json:"url" envconfig:"NAMECARD_DOCUMENT_STORE_URL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"NAMECARD_DOCUMENT_STORE_TIMEOUT_SEC"`
}

type MessagingConfig struct {
	URL        string `json:"url" envconfig:"NAMECARD_MESSAGING_URL"`
	DataURL    string `json:"data_url" envconfig:"NAMECARD_MESSAGING_DATA_URL"`
	TimeoutSec int    `json:"timeout_sec" envconfig:"NAMECARD_MESSAGING_TIMEOUT_SEC"`
}

// ImageHostConfig selects between an S3 bucket and an HTTP image host.
type ImageHostConfig struct {
	Provider           string `json:"provider" envconfig:"NAMECARD_IMAGE_HOST_PROVIDER"`
	URL                string `json:"url" envconfig:"NAMECARD_IMAGE_HOST_URL"`
	APIKeyRef          string `json:"api_key_ref" envconfig:"NAMECARD_IMAGE_HOST_API_KEY_REF"`
	AwsAccessKeyId     string `json:"aws_access_key_id" envconfig:"NAMECARD_AWS_ACCESS_KEY_ID"`
	AwsSecretAccessKey string `json:"aws_secret_access_key" envconfig:"NAMECARD_AWS_SECRET_ACCESS_KEY"`
	S3Endpoint         string `json:"s3_endpoint" envconfig:"NAMECARD_S3_ENDPOINT"`
	S3BucketName       string `json:"s3_bucket_name" envconfig:"NAMECARD_S3_BUCKET_NAME"`
	S3Region           string `json:"s3_region" envconfig:"NAMECARD_S3_REGION"`
	PublicBaseURL      string `json:"public_base_url" envconfig:"NAMECARD_S3_PUBLIC_BASE_URL"`
}

// DefaultTenantConfig describes the tenant used when no routing key matches.
type DefaultTenantConfig struct {
	Enabled     bool                    `json:"enabled" envconfig:"NAMECARD_DEFAULT_TENANT_ENABLED"`
	TenantID    string                  `json:"tenant_id" envconfig:"NAMECARD_DEFAULT_TENANT_ID"`
	Name        string                  `json:"name"`
	Limits      model.TenantLimits      `json:"limits"`
	Credentials model.TenantCredentials `json:"credentials"`
}

type Configuration struct {
	ProjectName     string              `json:"project_name" envconfig:"NAMECARD_PROJECT_NAME"`
	EnableTelemetry bool                `json:"enable_telemetry" envconfig:"NAMECARD_ENABLE_TELEMETRY"`
	Server          ServerConfig        `json:"server"`
	DataSource      DataSourceConfig    `json:"data_source"`
	Redis           RedisConfig         `json:"redis"`
	Store           StoreConfig         `json:"store"`
	TenantCache     TenantCacheConfig   `json:"tenant_cache"`
	Quota           QuotaConfig         `json:"quota"`
	Session         SessionConfig       `json:"session"`
	Security        SecurityConfig      `json:"security"`
	Upload          UploadConfig        `json:"upload"`
	Recognizer      RecognizerConfig    `json:"recognizer"`
	DocumentStore   DocumentStoreConfig `json:"document_store"`
	Messaging       MessagingConfig     `json:"messaging"`
	ImageHost       ImageHostConfig     `json:"image_host"`
	DefaultTenant   DefaultTenantConfig `json:"default_tenant"`
	Notification    Notification        `json:"notification"`
	RateLimit       RateLimitConfig     `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("namecard", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called namecard.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Namecard Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	cnf.setStoreDefaults()
	cnf.setSecurityDefaults()
	cnf.setUploadDefaults()
	cnf.setCollaboratorDefaults()

	switch cnf.Quota.FailPolicy {
	case "":
		cnf.Quota.FailPolicy = QuotaFailOpen
	case QuotaFailOpen, QuotaFailClosed:
	default:
		return fmt.Errorf("invalid quota fail policy %q: use %q or %q", cnf.Quota.FailPolicy, QuotaFailOpen, QuotaFailClosed)
	}
	if cnf.Quota.Timezone == "" {
		cnf.Quota.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(cnf.Quota.Timezone); err != nil {
		return fmt.Errorf("invalid quota timezone %q: %w", cnf.Quota.Timezone, err)
	}

	switch cnf.Upload.Backend {
	case "":
		cnf.Upload.Backend = UploadBackendAuto
	case UploadBackendAuto, UploadBackendQueue, UploadBackendInProcess:
	default:
		return fmt.Errorf("invalid upload backend %q", cnf.Upload.Backend)
	}

	return cnf.validateDefaultTenant()
}

func (cnf *Configuration) setStoreDefaults() {
	if cnf.Store.TimeoutMs <= 0 {
		cnf.Store.TimeoutMs = 2000
	}
	if cnf.Store.BreakerFailures <= 0 {
		cnf.Store.BreakerFailures = 3
	}
	if cnf.Store.BreakerCooldownSec <= 0 {
		cnf.Store.BreakerCooldownSec = 30
	}
	if cnf.Store.JanitorIntervalSec <= 0 {
		cnf.Store.JanitorIntervalSec = 60
	}
	if cnf.TenantCache.TTLSec <= 0 {
		cnf.TenantCache.TTLSec = 300
	}
	if cnf.TenantCache.Size <= 0 {
		cnf.TenantCache.Size = 1000
	}
	if cnf.Session.TTLHours <= 0 {
		cnf.Session.TTLHours = 24
	}
}

func (cnf *Configuration) setSecurityDefaults() {
	if cnf.Security.AbuseLimit <= 0 {
		cnf.Security.AbuseLimit = 10
	}
	if cnf.Security.AbuseWindowSec <= 0 {
		cnf.Security.AbuseWindowSec = 60
	}
	if cnf.Security.BlockDurationMin <= 0 {
		cnf.Security.BlockDurationMin = 60
	}
	if cnf.Security.MaxImageBytes <= 0 {
		cnf.Security.MaxImageBytes = 10 << 20
	}
}

func (cnf *Configuration) setUploadDefaults() {
	if cnf.Upload.Queue == "" {
		cnf.Upload.Queue = DEFAULT_UPLOAD_QUEUE
	}
	if cnf.Upload.MaxAttempts <= 0 {
		cnf.Upload.MaxAttempts = 3
	}
	if len(cnf.Upload.RetryDelaysSec) == 0 {
		cnf.Upload.RetryDelaysSec = []int{10, 30, 60}
	}
	if cnf.Upload.TimeoutSec <= 0 {
		cnf.Upload.TimeoutSec = 300
	}
	if cnf.Upload.LedgerTTLDays <= 0 {
		cnf.Upload.LedgerTTLDays = 7
	}
	if cnf.Upload.BufferSize <= 0 {
		cnf.Upload.BufferSize = 256
	}
	if cnf.Upload.Concurrency <= 0 {
		cnf.Upload.Concurrency = 2
	}
	if cnf.Upload.MonitoringPort == "" {
		cnf.Upload.MonitoringPort = DEFAULT_MONITORING_PORT
	}
}

func (cnf *Configuration) setCollaboratorDefaults() {
	if cnf.Recognizer.TimeoutSec <= 0 {
		cnf.Recognizer.TimeoutSec = 60
	}
	if cnf.DocumentStore.TimeoutSec <= 0 {
		cnf.DocumentStore.TimeoutSec = 15
	}
	if cnf.Messaging.TimeoutSec <= 0 {
		cnf.Messaging.TimeoutSec = 10
	}
	if cnf.ImageHost.Provider == "" {
		cnf.ImageHost.Provider = "http"
	}
}

func (cnf *Configuration) validateDefaultTenant() error {
	if !cnf.DefaultTenant.Enabled {
		return nil
	}
	tenant := cnf.DefaultTenantModel()
	if err := tenant.Validate(); err != nil {
		return fmt.Errorf("invalid default tenant: %w", err)
	}
	return nil
}

// DefaultTenantModel builds the fallback tenant. It returns nil when no
// default tenant is configured.
func (cnf *Configuration) DefaultTenantModel() *model.Tenant {
	if !cnf.DefaultTenant.Enabled {
		return nil
	}
	d := cnf.DefaultTenant
	tenant := &model.Tenant{
		TenantID:    d.TenantID,
		Name:        d.Name,
		RoutingKey:  "default",
		Status:      model.TenantActive,
		Limits:      d.Limits,
		Credentials: d.Credentials,
	}
	if tenant.TenantID == "" {
		tenant.TenantID = "default"
	}
	tenant.ApplyDefaults()
	return tenant
}

// Durations

func (cnf *Configuration) StoreTimeout() time.Duration {
	return time.Duration(cnf.Store.TimeoutMs) * time.Millisecond
}

func (cnf *Configuration) UploadRetryDelays() []time.Duration {
	delays := make([]time.Duration, len(cnf.Upload.RetryDelaysSec))
	for i, s := range cnf.Upload.RetryDelaysSec {
		delays[i] = time.Duration(s) * time.Second
	}
	return delays
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
