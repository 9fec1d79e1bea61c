package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// SetValue sets a configuration value by key. Keys are the YAML names of
// the settings, with nested settings joined by a dot (e.g. ftp.disable_epsv).
// Durations use time.ParseDuration syntax.
func (c *Config) SetValue(key, value string) error {
	field, ok := settingsField(&c.Settings, key)
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrUnknownConfigKey, key)
	}

	switch field.Interface().(type) {
	case time.Duration:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		boolVal, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %s", key, value)
		}
		field.SetBool(boolVal)
	case reflect.Int:
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		field.SetInt(int64(intVal))
	default:
		return fmt.Errorf("%w: %s", errors.ErrUnknownConfigKey, key)
	}
	return nil
}

// GetValue returns the value of a configuration key as a string.
func (c *Config) GetValue(key string) (string, error) {
	field, ok := settingsField(&c.Settings, key)
	if !ok {
		return "", fmt.Errorf("%w: %s", errors.ErrUnknownConfigKey, key)
	}
	return formatValue(field), nil
}

// ToMap flattens the settings into key/value strings for display.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	flatten(reflect.ValueOf(c.Settings), "", result)
	return result
}

func flatten(v reflect.Value, prefix string, result map[string]string) {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		key := yamlKey(t.Field(i))
		if key == "" {
			continue
		}
		fieldValue := v.Field(i)
		if fieldValue.Kind() == reflect.Struct {
			flatten(fieldValue, prefix+key+".", result)
			continue
		}
		result[prefix+key] = formatValue(fieldValue)
	}
}

// settingsField resolves a dotted key to an addressable field.
func settingsField(s *Settings, key string) (reflect.Value, bool) {
	v := reflect.ValueOf(s).Elem()
	for _, part := range strings.Split(key, ".") {
		if v.Kind() != reflect.Struct {
			return reflect.Value{}, false
		}
		found := false
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if yamlKey(t.Field(i)) == part {
				v = v.Field(i)
				found = true
				break
			}
		}
		if !found {
			return reflect.Value{}, false
		}
	}
	if v.Kind() == reflect.Struct {
		return reflect.Value{}, false
	}
	return v, true
}

func yamlKey(field reflect.StructField) string {
	tag := field.Tag.Get("yaml")
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func formatValue(v reflect.Value) string {
	if d, ok := v.Interface().(time.Duration); ok {
		return d.String()
	}
	switch v.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.String:
		return v.String()
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}
