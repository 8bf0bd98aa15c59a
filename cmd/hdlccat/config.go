package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/mydefence/mdif/hdlc/dlc"
)

// fileConfig is the optional YAML configuration file shape. device, baud and
// window can be overridden by command-line flags of the same name, and
// timer_interval by --timer; the other fields are settable only from the
// file.
type fileConfig struct {
	Device          string        `yaml:"device"`
	Baud            int           `yaml:"baud"`
	Window          int           `yaml:"window"`
	MaxFrameLen     int           `yaml:"max_frame_len"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	RetransmitCount int           `yaml:"retransmit_count"`
	KeepAliveCount  int           `yaml:"keep_alive_count"`
	TimerInterval   time.Duration `yaml:"timer_interval"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("hdlccat: read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("hdlccat: parse config: %w", err)
	}
	return cfg, nil
}

// dlcConfig translates the subset of fileConfig relevant to the Controller
// into a dlc.Config, leaving zero fields for dlc.Config.validate to default.
func (f fileConfig) dlcConfig(logger *log.Logger) dlc.Config {
	return dlc.Config{
		Window:          f.Window,
		MaxFrameLen:     f.MaxFrameLen,
		QueueCapacity:   f.QueueCapacity,
		RetransmitCount: f.RetransmitCount,
		KeepAliveCount:  f.KeepAliveCount,
		Logger:          logger,
	}
}
