package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override read by ApplyEnv
const EnvPrefix = "CONDUIT_"

// Load reads a YAML file on top of Default()
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML bytes on top of Default()
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return cfg, nil
}

// Save writes a configuration to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides selected fields from CONDUIT_* variables. Malformed
// values are reported and leave the field untouched.
func (c *Config) ApplyEnv() error {
	var errs []string

	if v, ok := lookup("NAME"); ok {
		c.Name = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Logging.Level = v
	}
	if v, ok := lookup("LOG_ENCODING"); ok {
		c.Logging.Encoding = v
	}
	if v, ok := lookup("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := lookup("BATCH_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extract.BatchSize = n
		} else {
			errs = append(errs, EnvPrefix+"BATCH_SIZE")
		}
	}
	if v, ok := lookup("CONCURRENCY"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Extract.Concurrency = n
		} else {
			errs = append(errs, EnvPrefix+"CONCURRENCY")
		}
	}
	if v, ok := lookup("BATCHER_MAX_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Batcher.MaxSize = n
		} else {
			errs = append(errs, EnvPrefix+"BATCHER_MAX_SIZE")
		}
	}
	if v, ok := lookup("BATCHER_THROTTLE"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Batcher.Throttle = d
		} else {
			errs = append(errs, EnvPrefix+"BATCHER_THROTTLE")
		}
	}
	if v, ok := lookup("HTTP_TIMEOUT"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.HTTP.RequestTimeout = d
		} else {
			errs = append(errs, EnvPrefix+"HTTP_TIMEOUT")
		}
	}
	if v, ok := lookup("TRACING_ENABLED"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Tracing.Enabled = b
		} else {
			errs = append(errs, EnvPrefix+"TRACING_ENABLED")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment overrides: %s", strings.Join(errs, ", "))
	}
	return nil
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
