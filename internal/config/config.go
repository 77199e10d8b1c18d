package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Database *dbConfig
	Service  *svcConfig
}

type dbConfig struct {
	Type         string `envconfig:"DB_TYPE" default:"pgsql"`
	Hostname     string `envconfig:"DB_HOST" default:"localhost"`
	Port         int    `envconfig:"DB_PORT" default:"5432"`
	Name         string `envconfig:"DB_NAME" default:"fleetdeck"`
	User         string `envconfig:"DB_USER" default:"admin"`
	Password     string `envconfig:"DB_PASS" default:"adminpass"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"100"`
}

type svcConfig struct {
	Address               string        `envconfig:"FLEETDECK_ADDRESS" default:":3443"`
	DeviceEndpointAddress string        `envconfig:"FLEETDECK_DEVICE_ENDPOINT_ADDRESS" default:":7443"`
	MetricsAddress        string        `envconfig:"FLEETDECK_METRICS_ADDRESS" default:":8080"`
	BaseUrl               string        `envconfig:"FLEETDECK_BASE_URL" default:"https://localhost:3443"`
	BaseDeviceEndpointUrl string        `envconfig:"FLEETDECK_BASE_DEVICE_ENDPOINT_URL" default:"https://localhost:7443"`
	LogLevel              string        `envconfig:"FLEETDECK_LOG_LEVEL" default:"info"`
	SweepInterval         time.Duration `envconfig:"FLEETDECK_SWEEP_INTERVAL" default:"30s"`
	StalledJobTimeout     time.Duration `envconfig:"FLEETDECK_STALLED_JOB_TIMEOUT" default:"30m"`
	DeviceOfflineTimeout  time.Duration `envconfig:"FLEETDECK_DEVICE_OFFLINE_TIMEOUT" default:"5m"`
	DefaultMaxRetries     int           `envconfig:"FLEETDECK_DEFAULT_MAX_RETRIES" default:"3"`
	PendingJobsLimit      int           `envconfig:"FLEETDECK_PENDING_JOBS_LIMIT" default:"10"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}

// NewDefault returns the built-in defaults without reading the environment.
// Tests tweak the returned struct directly.
func NewDefault() *Config {
	return &Config{
		Database: &dbConfig{
			Type:         "pgsql",
			Hostname:     "localhost",
			Port:         5432,
			Name:         "fleetdeck",
			User:         "admin",
			Password:     "adminpass",
			MaxIdleConns: 10,
			MaxOpenConns: 100,
		},
		Service: &svcConfig{
			Address:               ":3443",
			DeviceEndpointAddress: ":7443",
			MetricsAddress:        ":8080",
			BaseUrl:               "https://localhost:3443",
			BaseDeviceEndpointUrl: "https://localhost:7443",
			LogLevel:              "info",
			SweepInterval:         30 * time.Second,
			StalledJobTimeout:     30 * time.Minute,
			DeviceOfflineTimeout:  5 * time.Minute,
			DefaultMaxRetries:     3,
			PendingJobsLimit:      10,
		},
	}
}
