package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBufferSize  = 64 * 1024
	DefaultWaitTimeout = 1000 // milliseconds
	DefaultInterval    = 1    // seconds
)

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

type MonitorConfig struct {
	Enable   bool `yaml:"enable"`
	Interval int  `yaml:"interval"`
}

type SpliceConfig struct {
	Backend     string `yaml:"backend"`
	BufferSize  int    `yaml:"buffer-size"`
	WaitTimeout int    `yaml:"wait-timeout"`
	StopOnEOF   bool   `yaml:"stop-on-eof"`
}

type RelayConfig struct {
	BindAddress   string `yaml:"bind-address"`
	TargetAddress string `yaml:"target-address"`
	Proxy         string `yaml:"proxy"`
}

type Config struct {
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Splice  SpliceConfig  `yaml:"splice"`
	Relays  []RelayConfig `yaml:"relay"`
}

func (c MonitorConfig) ReportInterval() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c SpliceConfig) WaitTimeoutDuration() time.Duration {
	return time.Duration(c.WaitTimeout) * time.Millisecond
}

func ReadConfig(path string) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("Configuration file %s is empty", path)
	}

	return data, err
}

func ParseConfig(buf []byte) (*Config, error) {
	cfg := &Config{
		Log: LogConfig{Level: "info"},
		Monitor: MonitorConfig{
			Enable:   true,
			Interval: DefaultInterval,
		},
		Splice: SpliceConfig{
			Backend:     "auto",
			BufferSize:  DefaultBufferSize,
			WaitTimeout: DefaultWaitTimeout,
			StopOnEOF:   true,
		},
		Relays: []RelayConfig{},
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	if cfg.Splice.BufferSize <= 0 {
		return nil, fmt.Errorf("invalid buffer-size %d", cfg.Splice.BufferSize)
	}
	if cfg.Splice.WaitTimeout <= 0 {
		cfg.Splice.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.Monitor.Interval <= 0 {
		cfg.Monitor.Interval = DefaultInterval
	}
	for i, relay := range cfg.Relays {
		if len(relay.BindAddress) == 0 || len(relay.TargetAddress) == 0 {
			return nil, fmt.Errorf("relay %d: bind-address and target-address are required", i)
		}
	}
	return cfg, nil
}
