package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const maskedSecret = "******"

// Dump возвращает действующую конфигурацию в YAML, пароли скрыты
func Dump(c *Config) (string, error) {
	masked := *c
	if masked.ClickHouse.Password != "" {
		masked.ClickHouse.Password = maskedSecret
	}
	if masked.Redis.Password != "" {
		masked.Redis.Password = maskedSecret
	}
	if masked.Logging.SentryDSN != "" {
		masked.Logging.SentryDSN = maskedSecret
	}
	out, err := yaml.Marshal(&masked)
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(out), nil
}
