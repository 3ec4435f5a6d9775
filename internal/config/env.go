package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// LoadEnv overrides cfg's fields from GATEWAY_<SECTION>_<FIELD>
// environment variables, walking the struct via its yaml tags so the env
// var names track the YAML document shape.
func LoadEnv(cfg *Config) error {
	return loadEnvStruct(reflect.ValueOf(cfg).Elem(), "GATEWAY")
}

func loadEnvStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		name := strings.Split(yamlTag, ",")[0]
		envKey := fmt.Sprintf("%s_%s", prefix, strings.ToUpper(name))

		switch field.Kind() {
		case reflect.String:
			if val := os.Getenv(envKey); val != "" {
				field.SetString(val)
			}
		case reflect.Int, reflect.Int64:
			if val := os.Getenv(envKey); val != "" {
				n, err := strconv.ParseInt(val, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid int for %s: %w", envKey, err)
				}
				field.SetInt(n)
			}
		case reflect.Bool:
			if val := os.Getenv(envKey); val != "" {
				b, err := strconv.ParseBool(val)
				if err != nil {
					return fmt.Errorf("invalid bool for %s: %w", envKey, err)
				}
				field.SetBool(b)
			}
		case reflect.Slice:
			if val := os.Getenv(envKey); val != "" && field.Type().Elem().Kind() == reflect.String {
				parts := strings.Split(val, ",")
				slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
				for i, part := range parts {
					slice.Index(i).SetString(strings.TrimSpace(part))
				}
				field.Set(slice)
			}
		case reflect.Struct:
			if err := loadEnvStruct(field, envKey); err != nil {
				return err
			}
		}
	}

	return nil
}
