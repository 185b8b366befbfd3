// Package config loads the bridge's configuration from CLI flags and an
// optional JSON file, merging the two the way a long-lived daemon needs:
// file values first, explicit flags last.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"
)

// Mode selects which adapter backend the bridge drives.
type Mode string

const (
	ModeNative Mode = "native"
	ModeTunnel Mode = "tunnel"
)

// MQTT holds the optional MQTT bridge settings.
type MQTT struct {
	Broker string `json:"broker,omitempty"`
	User   string `json:"user,omitempty"`
	Pass   string `json:"pass,omitempty"`
	Prefix string `json:"prefix,omitempty"`
}

// Config is both the on-disk file format and the resolved runtime
// configuration after flags have been merged in.
type Config struct {
	Interface    string        `json:"interface,omitempty"`
	Host         string        `json:"host,omitempty"`
	Mode         Mode          `json:"mode,omitempty"`
	Port         int           `json:"port,omitempty"`
	LogLevel     string        `json:"log_level,omitempty"`
	StatusAddr   string        `json:"status_addr,omitempty"`
	UpdatePeriod time.Duration `json:"update_period,omitempty"`
	ScanInterval time.Duration `json:"scan_interval,omitempty"`
	MQTT         MQTT          `json:"mqtt,omitempty"`
}

const DefaultPort = 9526

// load reads and parses the config file at path. A missing or unreadable
// file yields a zero Config rather than an error: the file is optional.
func load(path string) Config {
	var cfg Config
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	_ = json.Unmarshal(data, &cfg)
	return cfg
}

// Save atomically writes cfg as JSON to path.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Parse builds a Config from args: the optional -config file is read
// first, then every flag the caller actually supplied (tracked via
// flag.Visit) overrides the corresponding file value.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("cecbridge", flag.ContinueOnError)

	iface := fs.String("interface", "", "native libcec adapter path (auto-detect if empty); mutually exclusive with -host")
	host := fs.String("host", "", "tcp-tunnel peer address (host:port); mutually exclusive with -interface")
	mode := fs.String("mode", "", "adapter mode: native or tunnel (derived from -interface/-host if omitted)")
	port := fs.Int("port", DefaultPort, "TCP fan-out server bind port")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	configPath := fs.String("config", "", "optional JSON config file path")
	mqttBroker := fs.String("mqtt-broker", "", "MQTT broker URL (e.g. tcp://localhost:1883); empty disables MQTT")
	mqttUser := fs.String("mqtt-user", "", "MQTT username")
	mqttPass := fs.String("mqtt-pass", "", "MQTT password")
	mqttPrefix := fs.String("mqtt-prefix", "cecbridge", "MQTT topic prefix")
	statusAddr := fs.String("status-addr", "", "status/debug HTTP API bind address; empty disables it")
	updatePeriod := fs.Duration("update-period", 30*time.Second, "per-device refresh period")
	scanInterval := fs.Duration("scan-interval", 30*time.Second, "bus scan period")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := load(*configPath)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interface":
			cfg.Interface = *iface
		case "host":
			cfg.Host = *host
		case "mode":
			cfg.Mode = Mode(*mode)
		case "port":
			cfg.Port = *port
		case "log-level":
			cfg.LogLevel = *logLevel
		case "mqtt-broker":
			cfg.MQTT.Broker = *mqttBroker
		case "mqtt-user":
			cfg.MQTT.User = *mqttUser
		case "mqtt-pass":
			cfg.MQTT.Pass = *mqttPass
		case "mqtt-prefix":
			cfg.MQTT.Prefix = *mqttPrefix
		case "status-addr":
			cfg.StatusAddr = *statusAddr
		case "update-period":
			cfg.UpdatePeriod = *updatePeriod
		case "scan-interval":
			cfg.ScanInterval = *scanInterval
		}
	})

	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.MQTT.Prefix == "" {
		cfg.MQTT.Prefix = "cecbridge"
	}
	if cfg.UpdatePeriod == 0 {
		cfg.UpdatePeriod = 30 * time.Second
	}
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = 30 * time.Second
	}

	if err := cfg.resolveMode(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// resolveMode derives and validates Mode from Interface/Host. At most one
// of Interface/Host may be set (neither means native); Mode, if explicit,
// must agree with the one that is set.
func (c *Config) resolveMode() error {
	if c.Interface != "" && c.Host != "" {
		return fmt.Errorf("config: -interface and -host are mutually exclusive")
	}

	var derived Mode
	switch {
	case c.Host != "":
		derived = ModeTunnel
	case c.Interface != "":
		derived = ModeNative
	default:
		derived = ModeNative
	}

	if c.Mode == "" {
		c.Mode = derived
		return nil
	}

	if c.Mode != ModeNative && c.Mode != ModeTunnel {
		return fmt.Errorf("config: unknown mode %q", c.Mode)
	}
	if (c.Host != "" || c.Interface != "") && c.Mode != derived {
		return fmt.Errorf("config: -mode %q conflicts with -interface/-host, which imply %q", c.Mode, derived)
	}
	return nil
}
