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
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT                  = "5010"
	DEFAULT_RECEIPT_TIMEOUT_SEC   = 120
	DEFAULT_RECEIPT_POLL_MS       = 1000
	DEFAULT_AUDIT_LOOKBACK_BLOCKS = 10000
	DEFAULT_RECONCILE_QUEUE       = "pledge_reconcile"
	DEFAULT_WEBHOOK_QUEUE         = "pledge_webhooks"
	DEFAULT_MAX_RETRY_ATTEMPTS    = 5
	DEFAULT_QUEUE_CONCURRENCY     = 5
	DEFAULT_MONITORING_PORT       = "5011"
	DEFAULT_CLEANUP_INTERVAL_SEC  = 10800
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"PLEDGE_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"PLEDGE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"PLEDGE_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"PLEDGE_SERVER_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"PLEDGE_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"PLEDGE_SERVER_PORT"`
}

// RateLimitConfig is disabled unless both RequestsPerSecond and Burst are set.
type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"PLEDGE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"PLEDGE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"PLEDGE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"PLEDGE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"PLEDGE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"PLEDGE_REDIS_SKIP_TLS_VERIFY"`
}

// LedgerConfig points the gateway at the escrow and multisig contracts.
type LedgerConfig struct {
	RPCUrl                string `json:"rpc_url" envconfig:"PLEDGE_LEDGER_RPC_URL"`
	ChainID               int64  `json:"chain_id" envconfig:"PLEDGE_LEDGER_CHAIN_ID"`
	EscrowAddress         string `json:"escrow_address" envconfig:"PLEDGE_LEDGER_ESCROW_ADDRESS"`
	MultisigAddress       string `json:"multisig_address" envconfig:"PLEDGE_LEDGER_MULTISIG_ADDRESS"`
	ReceiptTimeoutSeconds int    `json:"receipt_timeout_seconds" envconfig:"PLEDGE_LEDGER_RECEIPT_TIMEOUT_SECONDS"`
	ReceiptPollIntervalMs int    `json:"receipt_poll_interval_ms" envconfig:"PLEDGE_LEDGER_RECEIPT_POLL_INTERVAL_MS"`
	AuditLookbackBlocks   uint64 `json:"audit_lookback_blocks" envconfig:"PLEDGE_LEDGER_AUDIT_LOOKBACK_BLOCKS"`
}

// ReceiptTimeout is the default time to wait for a transaction to be mined.
func (l LedgerConfig) ReceiptTimeout() time.Duration {
	return time.Duration(l.ReceiptTimeoutSeconds) * time.Second
}

func (l LedgerConfig) ReceiptPollInterval() time.Duration {
	return time.Duration(l.ReceiptPollIntervalMs) * time.Millisecond
}

// GovernanceConfig decides who may propose milestone approvals.
type GovernanceConfig struct {
	ProtocolOwners   []string `json:"protocol_owners" envconfig:"PLEDGE_GOVERNANCE_PROTOCOL_OWNERS"`
	AllowAnyApprover bool     `json:"allow_any_approver" envconfig:"PLEDGE_GOVERNANCE_ALLOW_ANY_APPROVER"`
}

type QueueConfig struct {
	ReconcileQueue   string `json:"reconcile_queue" envconfig:"PLEDGE_QUEUE_RECONCILE"`
	WebhookQueue     string `json:"webhook_queue" envconfig:"PLEDGE_QUEUE_WEBHOOK"`
	MaxRetryAttempts int    `json:"max_retry_attempts" envconfig:"PLEDGE_QUEUE_MAX_RETRY_ATTEMPTS"`
	Concurrency      int    `json:"concurrency" envconfig:"PLEDGE_QUEUE_CONCURRENCY"`
	MonitoringPort   string `json:"monitoring_port" envconfig:"PLEDGE_QUEUE_MONITORING_PORT"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url" envconfig:"PLEDGE_SLACK_WEBHOOK_URL"`
}

type WebhookConfig struct {
	Url     string            `json:"url" envconfig:"PLEDGE_WEBHOOK_URL"`
	Headers map[string]string `json:"headers"`
}

type Notification struct {
	Slack   SlackWebhook  `json:"slack"`
	Webhook WebhookConfig `json:"webhook"`
}

type Configuration struct {
	ProjectName     string           `json:"project_name" envconfig:"PLEDGE_PROJECT_NAME"`
	Server          ServerConfig     `json:"server"`
	DataSource      DataSourceConfig `json:"data_source"`
	Redis           RedisConfig      `json:"redis"`
	Ledger          LedgerConfig     `json:"ledger"`
	Governance      GovernanceConfig `json:"governance"`
	Queue           QueueConfig      `json:"queue"`
	RateLimit       RateLimitConfig  `json:"rate_limit"`
	Notification    Notification     `json:"notification"`
	EnableTelemetry bool             `json:"enable_telemetry" envconfig:"PLEDGE_ENABLE_TELEMETRY"`
	TelemetryKey    string           `json:"telemetry_key" envconfig:"PLEDGE_TELEMETRY_KEY"`
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
	err = envconfig.Process("pledge", &cnf)
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

// InitConfig loads the configuration once at process start. The stored value is
// never mutated afterwards.
func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called pledge.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Pledge Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	if cnf.Ledger.RPCUrl == "" {
		log.Println("Error: Ledger RPC url is empty. It's a required field.")
		return errors.New("ledger RPC url is required")
	}

	if cnf.Ledger.EscrowAddress == "" {
		log.Println("Error: Escrow contract address is empty. It's a required field.")
		return errors.New("escrow contract address is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)
	cnf.Ledger.RPCUrl = strings.TrimSpace(cnf.Ledger.RPCUrl)
	cnf.Ledger.EscrowAddress = strings.TrimSpace(cnf.Ledger.EscrowAddress)
	cnf.Ledger.MultisigAddress = strings.TrimSpace(cnf.Ledger.MultisigAddress)
	for i, owner := range cnf.Governance.ProtocolOwners {
		cnf.Governance.ProtocolOwners[i] = strings.TrimSpace(owner)
	}

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Ledger.ReceiptTimeoutSeconds <= 0 {
		cnf.Ledger.ReceiptTimeoutSeconds = DEFAULT_RECEIPT_TIMEOUT_SEC
	}
	if cnf.Ledger.ReceiptPollIntervalMs <= 0 {
		cnf.Ledger.ReceiptPollIntervalMs = DEFAULT_RECEIPT_POLL_MS
	}
	if cnf.Ledger.AuditLookbackBlocks == 0 {
		cnf.Ledger.AuditLookbackBlocks = DEFAULT_AUDIT_LOOKBACK_BLOCKS
	}

	if cnf.Queue.ReconcileQueue == "" {
		cnf.Queue.ReconcileQueue = DEFAULT_RECONCILE_QUEUE
	}
	if cnf.Queue.WebhookQueue == "" {
		cnf.Queue.WebhookQueue = DEFAULT_WEBHOOK_QUEUE
	}
	if cnf.Queue.MaxRetryAttempts <= 0 {
		cnf.Queue.MaxRetryAttempts = DEFAULT_MAX_RETRY_ATTEMPTS
	}
	if cnf.Queue.Concurrency <= 0 {
		cnf.Queue.Concurrency = DEFAULT_QUEUE_CONCURRENCY
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = DEFAULT_MONITORING_PORT
	}

	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst != nil && cnf.RateLimit.CleanupIntervalSec == nil {
		cleanup := DEFAULT_CLEANUP_INTERVAL_SEC
		cnf.RateLimit.CleanupIntervalSec = &cleanup
	}

	if cnf.Server.Secure && cnf.Server.SecretKey == "" {
		return errors.New("secret key is required when secure mode is enabled")
	}

	if len(cnf.Governance.ProtocolOwners) == 0 && !cnf.Governance.AllowAnyApprover {
		log.Println("Warning: no protocol owners configured. Milestone approvals will be rejected.")
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
