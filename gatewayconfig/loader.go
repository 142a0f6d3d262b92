package gatewayconfig

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader loads a Document from YAML with a defaults-then-file-then-env
// overlay via a WithConfigPath/WithEnvPrefix/Load builder chain.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader builds a Loader with no file path and the gateway's default
// environment prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "LOADBALANCE"}
}

// WithConfigPath sets the YAML file to overlay onto the defaults.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment-variable prefix used for the
// final overlay pass.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load builds a Document: defaults, then the YAML file (if any), then
// environment overrides of the settings block, then validates the result.
func (l *Loader) Load() (*Document, error) {
	doc := DefaultDocument()

	if l.configPath != "" {
		if err := l.loadFromFile(doc); err != nil {
			return nil, fmt.Errorf("gatewayconfig: load file: %w", err)
		}
	}

	if err := l.loadSettingsFromEnv(&doc.Settings); err != nil {
		return nil, fmt.Errorf("gatewayconfig: load env: %w", err)
	}

	if errs := Validate(doc); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}
	return doc, nil
}

func (l *Loader) loadFromFile(doc *Document) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// loadSettingsFromEnv overlays LOADBALANCE_SETTINGS_* environment
// variables onto the settings block only; provider/model tables are never
// sourced from the environment since api_key values belong in the YAML
// file or a mounted secret, not ad hoc env var sprawl.
func (l *Loader) loadSettingsFromEnv(s *Settings) error {
	return setFieldsFromEnv(reflect.ValueOf(s).Elem(), l.envPrefix+"_SETTINGS")
}

func setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		name := envKeyFromFieldName(t.Field(i).Name)
		key := prefix + "_" + name

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		if err := setScalarField(field, raw); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	return nil
}

func setScalarField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}
	return nil
}

// envKeyFromFieldName upper-snake-cases a Go field name ("MaxRetries" ->
// "MAX_RETRIES") without reflecting on yaml tags, since Settings' fields
// are already the canonical names.
func envKeyFromFieldName(name string) string {
	var b strings.Builder
	for i, r := range name {
		if i > 0 && r >= 'A' && r <= 'Z' {
			b.WriteByte('_')
		}
		b.WriteRune(r)
	}
	return strings.ToUpper(b.String())
}

// ValidationError aggregates every validation failure found in one Load
// call, following config/loader.go's collect-don't-fail-fast pattern.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed (%d issues): %s", len(e.Errors), strings.Join(e.Errors, "; "))
}
