package host

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidTimerLocation   = errors.New("invalid timer location")
)

// Config holds the runtime settings of the host.
type Config struct {
	Addr              string        `yaml:"addr" toml:"addr" env:"ADDR" default:":8080" desc:"HTTP listen address"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" default:"30s" desc:"Time allowed for HTTP shutdown and terminate hooks"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" toml:"read_header_timeout" env:"READ_HEADER_TIMEOUT" default:"10s" desc:"HTTP read header timeout"`
	MetricsPath       string        `yaml:"metricsPath" toml:"metrics_path" env:"METRICS_PATH" desc:"Path serving Prometheus metrics, empty disables"`
	HealthPath        string        `yaml:"healthPath" toml:"health_path" env:"HEALTH_PATH" desc:"Path serving the readiness report, empty disables"`
	TimerLocation     string        `yaml:"timerLocation" toml:"timer_location" env:"TIMER_LOCATION" desc:"IANA time zone for timer schedules, empty means local"`
}

// Validate checks the config after defaults and feeders have been applied.
func (c *Config) Validate() error {
	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}
	if _, err := c.location(); err != nil {
		return err
	}
	return nil
}

func (c *Config) location() (*time.Location, error) {
	if c.TimerLocation == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimerLocation)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidTimerLocation, c.TimerLocation, err)
	}
	return loc, nil
}
