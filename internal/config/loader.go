package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// LookupFunc retrieves a configuration value by key, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadWith(os.LookupEnv)
}

// LoadWith is Load with an explicit value source.
func LoadWith(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// loadStruct recursively populates struct fields from the lookup source.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		value := get(lookup, envName)
		if value == "" && envAlt != "" {
			value = get(lookup, envAlt)
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

func get(lookup LookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(SplitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// SplitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Normalize canonicalizes values that have several accepted spellings.
func (c *Config) Normalize() {
	if c.Input.Extension != "" && !strings.HasPrefix(c.Input.Extension, ".") {
		c.Input.Extension = "." + c.Input.Extension
	}
	c.History.Driver = strings.ToLower(c.History.Driver)
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	if c.Input.Extension == "" {
		errs = append(errs, "INPUT_EXTENSION must not be empty")
	}
	if (c.Input.Column1 == "") != (c.Input.Column2 == "") {
		errs = append(errs, "COLUMN_1 and COLUMN_2 must be set together")
	}
	if c.Input.Column1 != "" && c.Input.Column1 == c.Input.Column2 {
		errs = append(errs, fmt.Sprintf("COLUMN_1 and COLUMN_2 must differ (both %q)", c.Input.Column1))
	}

	if !strings.HasSuffix(strings.ToLower(c.Output.FileName), ".xlsx") {
		errs = append(errs, fmt.Sprintf("OUTPUT_FILE (%q) must end in .xlsx", c.Output.FileName))
	}
	if strings.ContainsAny(c.Output.FileName, `/\`) {
		errs = append(errs, fmt.Sprintf("OUTPUT_FILE (%q) must be a file name, not a path", c.Output.FileName))
	}

	if c.Process.Workers <= 0 {
		errs = append(errs, "WORKERS must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxUploadSize <= 0 {
		errs = append(errs, "SERVER_MAX_UPLOAD_SIZE must be positive")
	}

	if c.Export.MaxConcurrent <= 0 {
		errs = append(errs, "EXPORT_MAX_CONCURRENT must be positive")
	}
	if c.Export.MaxWaitTime <= 0 {
		errs = append(errs, "EXPORT_MAX_WAIT_TIME must be positive")
	}

	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "SECURITY_API_KEYS is required when SECURITY_REQUIRE_API_KEY is true")
	}

	switch c.History.Driver {
	case "none":
	case "sqlite", "postgres":
		if c.History.URL == "" {
			errs = append(errs, fmt.Sprintf("HISTORY_URL is required when HISTORY_DRIVER is %s", c.History.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("HISTORY_DRIVER (%q) must be one of: none, sqlite, postgres", c.History.Driver))
	}

	if c.Schedule.Validate != "" {
		if c.Input.Folder == "" {
			errs = append(errs, "INPUT_FOLDER is required when SCHEDULE_VALIDATE is set")
		}
		if _, err := cron.ParseStandard(c.Schedule.Validate); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULE_VALIDATE (%q) is not a valid cron spec: %v", c.Schedule.Validate, err))
		}
	}
	if c.Schedule.Prune != "" {
		if _, err := cron.ParseStandard(c.Schedule.Prune); err != nil {
			errs = append(errs, fmt.Sprintf("SCHEDULE_PRUNE (%q) is not a valid cron spec: %v", c.Schedule.Prune, err))
		}
	}
	if c.Schedule.Retention < 0 {
		errs = append(errs, "HISTORY_RETENTION must be non-negative")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// The history connection string is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Input: {Folder: %q, Extension: %q, Files: %d, Columns: [%q %q]}, ",
		c.Input.Folder, c.Input.Extension, len(c.Input.Files), c.Input.Column1, c.Input.Column2))
	b.WriteString(fmt.Sprintf("Output: {Folder: %q, FileName: %q}, ", c.Output.Folder, c.Output.FileName))
	b.WriteString(fmt.Sprintf("Process: {Workers: %d}, ", c.Process.Workers))
	b.WriteString(fmt.Sprintf("Server: {Addr: %q}, ", c.Server.Addr()))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %t, RPM: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute))
	b.WriteString(fmt.Sprintf("Security: {TrustedProxies: %d, RequireAPIKey: %t, APIKeys: %d}, ",
		len(c.Security.TrustedProxies), c.Security.RequireAPIKey, len(c.Security.APIKeys)))
	b.WriteString(fmt.Sprintf("History: {Driver: %q, URL: [MASKED]}, ", c.History.Driver))
	b.WriteString(fmt.Sprintf("Schedule: {Validate: %q, Prune: %q, Retention: %s}, ",
		c.Schedule.Validate, c.Schedule.Prune, c.Schedule.Retention))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
