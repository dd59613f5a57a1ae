package conf

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Oudwins/taskforge/internals/env"
	"github.com/Oudwins/taskforge/internals/version"

	z "github.com/Oudwins/zog"
)

const DefaultDataDir = "~/.forge"

type Config struct {
	Version      string             `json:"-"`
	Server       ServerConfig       `json:"server" zog:"server"`
	Worktrees    WorktreesConfig    `json:"worktrees" zog:"worktrees"`
	Containers   ContainersConfig   `json:"containers" zog:"containers"`
	Cleanup      CleanupConfig      `json:"cleanup" zog:"cleanup"`
	Webhooks     WebhooksConfig     `json:"webhooks" zog:"webhooks"`
	Providers    ProvidersConfig    `json:"providers" zog:"providers"`
	Provisioning ProvisioningConfig `json:"provisioning" zog:"provisioning"`
}

type ServerConfig struct {
	DataDir  string `json:"data_dir" zog:"data_dir"`
	LogLevel string `json:"log_level" zog:"log_level"`
}

type WorktreesConfig struct {
	Dir string `json:"dir" zog:"dir"`
}

type ContainersConfig struct {
	Enabled bool   `json:"enabled" zog:"enabled"`
	Runtime string `json:"runtime" zog:"runtime"`
	Image   string `json:"image" zog:"image"`
}

type CleanupConfig struct {
	Retention string `json:"retention" zog:"retention"`
	Interval  string `json:"interval" zog:"interval"`
}

type WebhooksConfig struct {
	MaxAttempts  int    `json:"max_attempts" zog:"max_attempts"`
	Timeout      string `json:"timeout" zog:"timeout"`
	PollInterval string `json:"poll_interval" zog:"poll_interval"`
	BackoffBase  string `json:"backoff_base" zog:"backoff_base"`
	BackoffMax   string `json:"backoff_max" zog:"backoff_max"`
	BatchSize    int    `json:"batch_size" zog:"batch_size"`
	Workers      int    `json:"workers" zog:"workers"`
}

type ProvidersConfig struct {
	Github GitHubConfig `json:"github" zog:"github"`
}

type GitHubConfig struct {
	APIURL string `json:"api_url" zog:"api_url"`
	// PollInterval of "0" disables the background PR poller.
	PollInterval string `json:"poll_interval" zog:"poll_interval"`
}

type ProvisioningConfig struct {
	Workers int `json:"workers" zog:"workers"`
}

var serverSchema = z.Struct(z.Shape{
	"DataDir":  z.String().Default(DefaultDataDir).Transform(expandPathTransform),
	"LogLevel": z.String().Default("debug").OneOf([]string{"debug", "info", "warn", "error"}),
})

var worktreesSchema = z.Struct(z.Shape{
	"Dir": z.String().Default("~/.forge/worktrees").Transform(expandPathTransform),
})

var containersSchema = z.Struct(z.Shape{
	"Enabled": z.Bool().Default(false),
	"Runtime": z.String().Default("docker").OneOf([]string{"docker", "podman"}),
	"Image":   z.String().Default("alpine:3.20"),
})

var cleanupSchema = z.Struct(z.Shape{
	"Retention": durationSchema("72h"),
	"Interval":  durationSchema("1h"),
})

var webhooksSchema = z.Struct(z.Shape{
	"MaxAttempts":  z.Int().Default(7).GTE(1),
	"Timeout":      durationSchema("30s"),
	"PollInterval": durationSchema("30s"),
	"BackoffBase":  durationSchema("1s"),
	"BackoffMax":   durationSchema("8h"),
	"BatchSize":    z.Int().Default(50).GTE(1),
	"Workers":      z.Int().Default(4).GTE(1),
})

var gitHubSchema = z.Struct(z.Shape{
	"APIURL":       z.String().Default("https://api.github.com").URL(),
	"PollInterval": durationSchema("0"),
})

var providersSchema = z.Struct(z.Shape{
	"Github": gitHubSchema,
})

var provisioningSchema = z.Struct(z.Shape{
	"Workers": z.Int().Default(2).GTE(1),
})

var ConfigSchema = z.Struct(z.Shape{
	"Server":       serverSchema,
	"Worktrees":    worktreesSchema,
	"Containers":   containersSchema,
	"Cleanup":      cleanupSchema,
	"Webhooks":     webhooksSchema,
	"Providers":    providersSchema,
	"Provisioning": provisioningSchema,
})

func durationSchema(def string) *z.StringSchema[string] {
	return z.String().Default(def).Trim().TestFunc(func(valPtr *string, ctx z.Ctx) bool {
		_, err := time.ParseDuration(*valPtr)
		return err == nil
	}, z.Message("must be a duration such as 30s or 72h"))
}

// Duration parses a value already validated by durationSchema.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

var config *Config

func GetConfig() *Config {
	if config == nil {
		dataDir := env.Get().DATA_DIR
		if dataDir == "" {
			dataDir = DefaultDataDir
		}
		parsed, err := Load(dataDir)
		if err != nil {
			log.Fatal("[Forge] Failed to load config ", err)
		}
		config = parsed
	}
	return config
}

// SetConfig replaces the process config. Tests and daemon bootstrap.
func SetConfig(c *Config) {
	config = c
}

// Load reads forge.json or forge.yaml from dataDir. A missing or empty file
// yields the defaults. The data dir the file was found in wins over the
// file's own server.data_dir only when the file leaves it unset.
func Load(dataDir string) (*Config, error) {
	dir, err := expandPath(dataDir)
	if err != nil {
		return nil, err
	}
	dir = filepath.Clean(dir)

	payload, err := readConfigFile(dir)
	if err != nil {
		return nil, err
	}
	server, _ := payload["server"].(map[string]any)
	if server == nil {
		server = map[string]any{}
		payload["server"] = server
	}
	if _, ok := server["data_dir"]; !ok {
		server["data_dir"] = dir
		if _, ok := payload["worktrees"]; !ok {
			payload["worktrees"] = map[string]any{"dir": filepath.Join(dir, "worktrees")}
		}
	}
	if level := env.Get().LOG_LEVEL; level != "" {
		server["log_level"] = level
	}
	if interval := env.Get().WEBHOOK_POLL_INTERVAL; interval != "" {
		webhooks, _ := payload["webhooks"].(map[string]any)
		if webhooks == nil {
			webhooks = map[string]any{}
			payload["webhooks"] = webhooks
		}
		webhooks["poll_interval"] = interval
	}

	parsed := &Config{}
	if issues := ConfigSchema.Parse(payload, parsed); issues != nil {
		return nil, fmt.Errorf("invalid config: %v", z.Issues.Flatten(issues))
	}
	parsed.Version = version.Version()
	return parsed, nil
}

func readConfigFile(dir string) (map[string]any, error) {
	payload := map[string]any{}
	for _, name := range []string{"forge.json", "forge.yaml", "forge.yml"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		if strings.TrimSpace(string(data)) == "" {
			return payload, nil
		}
		if strings.HasSuffix(name, ".json") {
			err = json.Unmarshal(data, &payload)
		} else {
			err = yaml.Unmarshal(data, &payload)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return payload, nil
	}
	return payload, nil
}

func expandPathTransform(ptr *string, c z.Ctx) error {
	expanded, err := ExpandPath(*ptr)
	*ptr = expanded
	return err
}

// ExpandPath replaces a leading ~ with the home directory.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
	}
	return path, nil
}
