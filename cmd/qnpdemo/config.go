package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"qnp"
)

// tuningConfig holds the connection-tuning knobs a qnpdemo run can load from
// a YAML file. Any field left unset in the file keeps the Connection's own
// built-in default.
type tuningConfig struct {
	PingTimeoutMS  *int `yaml:"ping_timeout_ms"`
	PingRetryCount *int `yaml:"ping_retry_count"`

	MinSendPeriodMS *int `yaml:"min_send_period_ms"`
	MinRecvPeriodMS *int `yaml:"min_recv_period_ms"`

	MaxSendBandwidth *uint32 `yaml:"max_send_bandwidth"`
	MaxRecvBandwidth *uint32 `yaml:"max_recv_bandwidth"`

	SimulatedLossPercent *float32 `yaml:"simulated_loss_percent"`
	SimulatedLatencyMS   *int     `yaml:"simulated_latency_ms"`
}

// Fallbacks used when only one half of a paired setter's arguments is given
// in the config file. They mirror the Connection's own zero-value built-in
// defaults so an unspecified half is a true no-op.
const (
	fallbackPingTimeout    = 5000 * time.Millisecond
	fallbackPingRetryCount = 5
)

// loadTuningConfig reads path and parses it as YAML. A missing path is not
// an error: it just means every field stays at its zero value and apply
// leaves the connection untouched.
func loadTuningConfig(path string) (*tuningConfig, error) {
	cfg := &tuningConfig{}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qnpdemo: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("qnpdemo: parse config: %w", err)
	}
	return cfg, nil
}

// apply pushes every field present in the file onto c, via the same setters
// a caller would use directly.
func (cfg *tuningConfig) apply(c *qnp.Connection) error {
	if cfg.PingTimeoutMS != nil || cfg.PingRetryCount != nil {
		timeout := fallbackPingTimeout
		retries := fallbackPingRetryCount
		if cfg.PingTimeoutMS != nil {
			timeout = time.Duration(*cfg.PingTimeoutMS) * time.Millisecond
		}
		if cfg.PingRetryCount != nil {
			retries = *cfg.PingRetryCount
		}
		if err := c.SetPingTimeouts(timeout, retries); err != nil {
			return fmt.Errorf("qnpdemo: ping_timeout_ms/ping_retry_count: %w", err)
		}
	}

	if cfg.MinSendPeriodMS != nil || cfg.MinRecvPeriodMS != nil || cfg.MaxSendBandwidth != nil || cfg.MaxRecvBandwidth != nil {
		// Unset fields fall back to the Connection's built-in 96 ms / 2500 B/s.
		minSend, minRecv := 96*time.Millisecond, 96*time.Millisecond
		maxSend, maxRecv := uint32(2500), uint32(2500)
		if cfg.MinSendPeriodMS != nil {
			minSend = time.Duration(*cfg.MinSendPeriodMS) * time.Millisecond
		}
		if cfg.MinRecvPeriodMS != nil {
			minRecv = time.Duration(*cfg.MinRecvPeriodMS) * time.Millisecond
		}
		if cfg.MaxSendBandwidth != nil {
			maxSend = *cfg.MaxSendBandwidth
		}
		if cfg.MaxRecvBandwidth != nil {
			maxRecv = *cfg.MaxRecvBandwidth
		}
		if err := c.SetFixedRateParameters(minSend, minRecv, maxSend, maxRecv); err != nil {
			return fmt.Errorf("qnpdemo: rate parameters: %w", err)
		}
	}

	if cfg.SimulatedLossPercent != nil || cfg.SimulatedLatencyMS != nil {
		var loss float32
		var latency time.Duration
		if cfg.SimulatedLossPercent != nil {
			loss = *cfg.SimulatedLossPercent / 100
		}
		if cfg.SimulatedLatencyMS != nil {
			latency = time.Duration(*cfg.SimulatedLatencyMS) * time.Millisecond
		}
		if err := c.SetSimulatedNetParams(loss, latency); err != nil {
			return fmt.Errorf("qnpdemo: simulated net params: %w", err)
		}
	}

	return nil
}
