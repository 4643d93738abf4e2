package main

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MonitorConfig is the optional JSON config file; command line flags
// override any value set here.
type MonitorConfig struct {
	Interface    string   `json:"interface"`
	DatabasePath string   `json:"database"`
	ReplayPath   string   `json:"replay,omitempty"`
	Format       string   `json:"format,omitempty"` // "json" or "cbor"
	OutputPath   string   `json:"output,omitempty"`
	Messages     []string `json:"messages,omitempty"` // decode only these, all when empty
	LogLevel     string   `json:"log_level,omitempty"`
	LogPath      string   `json:"log_path,omitempty"`
	Labels       bool     `json:"labels,omitempty"` // attach VAL_ labels to records
}

func defaultConfig() MonitorConfig {
	return MonitorConfig{
		Interface: "vcan0",
		Format:    "json",
		LogLevel:  "info",
		LogPath:   "signal_monitor.log",
	}
}

// LoadMonitorConfig reads path on top of the defaults.
func LoadMonitorConfig(path string) (MonitorConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return MonitorConfig{}, errors.Wrap(err, "read file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return MonitorConfig{}, errors.Wrap(err, "unmarshal")
	}
	return cfg, nil
}

func (c *MonitorConfig) Validate() error {
	if c.DatabasePath == "" {
		return errors.New("database path is required")
	}
	switch c.Format {
	case "json", "cbor":
	case "":
		c.Format = "json"
	default:
		return errors.Errorf("invalid format %q (want json or cbor)", c.Format)
	}
	if c.ReplayPath == "" && c.Interface == "" {
		return errors.New("either an interface or a replay file is required")
	}
	return nil
}

// parseAssignments parses "name=value,name=value" into physical values.
func parseAssignments(s string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, val, ok := strings.Cut(part, "=")
		if !ok {
			return nil, errors.Errorf("assignment %q: want name=value", part)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "assignment %q", part)
		}
		out[strings.TrimSpace(name)] = v
	}
	return out, nil
}
