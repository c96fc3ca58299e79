/*
Copyright 2024 Fable Authors.

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

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5401"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	Secure    bool   `json:"secure" envconfig:"FABLE_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"FABLE_SERVER_SECRET_KEY"`
	Port      string `json:"port" envconfig:"FABLE_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"FABLE_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"FABLE_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"FABLE_REDIS_SKIP_TLS_VERIFY"`
}

// PinningCredential is one set of access tokens for the pinning gateway.
// The key/secret pair authenticates uploads; the JWT authenticates gateway reads.
type PinningCredential struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	JWT       string `json:"jwt"`
}

type PinningConfig struct {
	PinURL               string              `json:"pin_url" envconfig:"FABLE_PINNING_PIN_URL"`
	GatewayURL           string              `json:"gateway_url" envconfig:"FABLE_PINNING_GATEWAY_URL"`
	RequestTimeoutSec    int                 `json:"request_timeout_sec" envconfig:"FABLE_PINNING_REQUEST_TIMEOUT_SEC"`
	MinRequestIntervalMs int                 `json:"min_request_interval_ms" envconfig:"FABLE_PINNING_MIN_REQUEST_INTERVAL_MS"`
	Credentials          []PinningCredential `json:"credentials"`
}

type ChainConfig struct {
	RpcEndpoints    []string `json:"rpc_endpoints" envconfig:"FABLE_CHAIN_RPC_ENDPOINTS"`
	ContractAddress string   `json:"contract_address" envconfig:"FABLE_CHAIN_CONTRACT_ADDRESS"`
	NetworkID       string   `json:"network_id" envconfig:"FABLE_CHAIN_NETWORK_ID"`
}

type QueueConfig struct {
	SyncQueue      string `json:"sync_queue" envconfig:"FABLE_QUEUE_SYNC"`
	MonitoringPort string `json:"monitoring_port" envconfig:"FABLE_QUEUE_MONITORING_PORT"`
	MaxSyncWorkers int    `json:"max_sync_workers" envconfig:"FABLE_QUEUE_MAX_SYNC_WORKERS"`
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"FABLE_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"FABLE_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"FABLE_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type Configuration struct {
	ProjectName  string           `json:"project_name" envconfig:"FABLE_PROJECT_NAME"`
	Server       ServerConfig     `json:"server"`
	DataSource   DataSourceConfig `json:"data_source"`
	Redis        RedisConfig      `json:"redis"`
	Pinning      PinningConfig    `json:"pinning"`
	Chain        ChainConfig      `json:"chain"`
	Queue        QueueConfig      `json:"queue"`
	Notification Notification     `json:"notification"`
	RateLimit    RateLimitConfig  `json:"rate_limit"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}

	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("fable", &cnf)
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
		return nil, errors.New("config not loaded from file. Create a json file called fable.json with your config ❌")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "Fable Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Warning: Redis DNS is empty. Sync jobs will run in-process instead of through the worker queue.")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	// Set default value for Port if it's empty
	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	if cnf.Pinning.PinURL == "" {
		cnf.Pinning.PinURL = "https://api.pinata.cloud/pinning"
	}
	if cnf.Pinning.GatewayURL == "" {
		cnf.Pinning.GatewayURL = "https://gateway.pinata.cloud/ipfs"
	}
	if cnf.Pinning.RequestTimeoutSec <= 0 {
		cnf.Pinning.RequestTimeoutSec = 10
	}
	if cnf.Pinning.MinRequestIntervalMs <= 0 {
		cnf.Pinning.MinRequestIntervalMs = 500
	}
	if len(cnf.Pinning.Credentials) == 0 {
		log.Println("Warning: No pinning credentials configured. Content uploads and reads will fail.")
	}

	if len(cnf.Chain.RpcEndpoints) == 0 {
		cnf.Chain.RpcEndpoints = []string{
			"https://polygon-rpc.com",
			"https://rpc-mainnet.matic.quiknode.pro",
		}
		log.Println("Warning: No chain RPC endpoints configured. Using public defaults.")
	}
	if cnf.Chain.NetworkID == "" {
		cnf.Chain.NetworkID = "137"
	}

	if cnf.Queue.SyncQueue == "" {
		cnf.Queue.SyncQueue = "new:sync"
	}
	if cnf.Queue.MonitoringPort == "" {
		cnf.Queue.MonitoringPort = "5402"
	}
	if cnf.Queue.MaxSyncWorkers <= 0 {
		cnf.Queue.MaxSyncWorkers = 4
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
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
