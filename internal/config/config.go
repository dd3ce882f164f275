package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/kvsnode/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every `env` struct tag when reading overrides.
const EnvPrefix = "KVSNODE_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts with precedence CLI flags > KVSNODE_* env vars > TOML file.
// opts must be a pointer to a struct. A field named Config holds the TOML path.
// Fields carry a dotted `toml:"section.key"` tag and an `env:"KEY"` tag.
// If cmd is provided, flags explicitly set on the command line are left alone.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: expected pointer to struct, got %T", opts)
	}
	v = v.Elem()
	t := v.Type()

	changed := changedFlags(cmd)

	if configPath := configFilePath(v); configPath != "" {
		data, err := os.ReadFile(configPath)
		if err == nil {
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse TOML config %s: %w", configPath, err)
			}
			for i := 0; i < v.NumField(); i++ {
				fieldType := t.Field(i)
				if changed[flagName(fieldType)] {
					continue
				}
				if tomlPath := fieldType.Tag.Get("toml"); tomlPath != "" {
					if value := getNestedValue(doc, tomlPath); value != nil {
						setFieldValue(v.Field(i), value)
					}
				}
			}
		}
	}

	for i := 0; i < v.NumField(); i++ {
		fieldType := t.Field(i)
		if changed[flagName(fieldType)] {
			continue
		}
		if envKey := fieldType.Tag.Get("env"); envKey != "" {
			if envValue := os.Getenv(EnvPrefix + envKey); envValue != "" {
				setFieldValueFromString(v.Field(i), envValue)
			}
		}
	}

	return nil
}

func changedFlags(cmd *cobra.Command) map[string]bool {
	changed := make(map[string]bool)
	if cmd == nil {
		return changed
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			changed[f.Name] = true
		}
	})
	return changed
}

func configFilePath(v reflect.Value) string {
	field := v.FieldByName("Config")
	if !field.IsValid() || field.Kind() != reflect.String {
		return ""
	}
	return field.String()
}

// flagName returns the CLI flag for a field: its `name` tag, as humacli
// does, or the converted field name.
func flagName(field reflect.StructField) string {
	if name := field.Tag.Get("name"); name != "" {
		return name
	}
	return fieldNameToFlag(field.Name)
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "NatsURL" -> "nats-u-r-l", "StopTimeout" -> "stop-timeout".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from a nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue assigns a decoded TOML value to a struct field.
func setFieldValue(field reflect.Value, value any) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			if parsed, err := time.ParseDuration(d); err == nil {
				field.SetInt(int64(parsed))
			}
		case int64:
			field.SetInt(d * int64(time.Second))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case int:
			field.SetInt(int64(n))
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return
		}
		arr, ok := value.([]any)
		if !ok {
			return
		}
		slice := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, strOk := item.(string); strOk {
				slice = append(slice, s)
			}
		}
		field.Set(reflect.ValueOf(slice))
	}
}

// setFieldValueFromString parses an env var value into a struct field.
func setFieldValueFromString(field reflect.Value, value string) {
	if !field.CanSet() {
		return
	}

	if field.Type() == durationType {
		if d, err := time.ParseDuration(value); err == nil {
			field.SetInt(int64(d))
		}
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		if b, err := strconv.ParseBool(value); err == nil {
			field.SetBool(b)
		}
	case reflect.Int, reflect.Int64:
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			field.SetInt(i)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			slice := make([]string, len(parts))
			for i, part := range parts {
				slice[i] = strings.TrimSpace(part)
			}
			field.Set(reflect.ValueOf(slice))
		}
	}
}

// LoadLoggingConfig reads the [logging] table and its [logging.modules]
// sub-table. Defaults are returned when the file is missing or unreadable.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}

	if configPath == "" {
		return cfg
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging struct {
			Level   string            `toml:"level"`
			Format  string            `toml:"format"`
			Modules map[string]string `toml:"modules"`
		} `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}

	if raw.Logging.Level != "" {
		cfg.Level = raw.Logging.Level
	}
	if raw.Logging.Format != "" {
		cfg.Format = raw.Logging.Format
	}
	for module, level := range raw.Logging.Modules {
		cfg.Modules[module] = level
	}

	return cfg
}
