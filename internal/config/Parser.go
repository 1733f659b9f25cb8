package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SQLPUMP"

// readFile читает все байты из файла по пути
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// sanitize удаляет BOM и табуляции
func sanitize(data []byte) []byte {
	// Удаляем UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	// Заменяем табы на два пробела
	data = bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
	return data
}

// setDefaults регистрирует значения по умолчанию.
// Ключи, известные viper, можно переопределить через окружение.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ClickHouse.Address", "localhost:9000")
	v.SetDefault("ClickHouse.Username", "default")
	v.SetDefault("ClickHouse.Password", "")
	v.SetDefault("ClickHouse.Database", "default")
	v.SetDefault("ClickHouse.Protocol", "native")
	v.SetDefault("ClickHouse.DialTimeout", 5*time.Second)
	v.SetDefault("ClickHouse.QueryTimeout", 60*time.Second)
	v.SetDefault("ClickHouse.HistoryTable", "")

	v.SetDefault("Repl.Prompt", "=> ")
	v.SetDefault("Repl.ContinuationPrompt", "-> ")
	v.SetDefault("Repl.HistoryFile", "")
	v.SetDefault("Repl.StopOnError", false)
	v.SetDefault("Repl.Timing", false)

	v.SetDefault("Follow.Directories", []string{})
	v.SetDefault("Follow.FilePattern", "*.sql")
	v.SetDefault("Follow.BatchSize", 50)
	v.SetDefault("Follow.BatchInterval", 5*time.Second)
	v.SetDefault("Follow.RescanInterval", 30*time.Second)
	v.SetDefault("Follow.SaveInterval", 30*time.Second)
	v.SetDefault("Follow.IdleFlush", 2*time.Minute)

	v.SetDefault("ProcessedStorage", "file")
	v.SetDefault("ProcessedFile", "processed_files.json")

	v.SetDefault("Redis.Host", "localhost")
	v.SetDefault("Redis.Port", 6379)
	v.SetDefault("Redis.DB", 0)
	v.SetDefault("Redis.Password", "")
	v.SetDefault("Redis.Key", "sqlpump:offsets")

	v.SetDefault("Logging.Level", "info")
	v.SetDefault("Logging.LogFile", "")
	v.SetDefault("Logging.SentryDSN", "")
	v.SetDefault("Logging.EnableSentry", false)
}

// parseYAML парсит YAML-данные в структуру Config
func parseYAML(data []byte) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(bytes.TrimSpace(data)) > 0 {
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.ClickHouse.Address == "" {
		return fmt.Errorf("ClickHouse.Address must not be empty")
	}
	if c.ClickHouse.Database == "" {
		return fmt.Errorf("ClickHouse.Database must not be empty")
	}
	if c.ClickHouse.Protocol != "native" && c.ClickHouse.Protocol != "http" {
		return fmt.Errorf("ClickHouse.Protocol must be native or http, got %q", c.ClickHouse.Protocol)
	}
	if c.ClickHouse.QueryTimeout <= 0 {
		return fmt.Errorf("ClickHouse.QueryTimeout must be positive")
	}
	if c.Follow.BatchSize <= 0 {
		return fmt.Errorf("Follow.BatchSize must be positive")
	}
	if c.Follow.BatchInterval <= 0 {
		return fmt.Errorf("Follow.BatchInterval must be positive")
	}
	if c.Follow.RescanInterval <= 0 || c.Follow.SaveInterval <= 0 {
		return fmt.Errorf("Follow.RescanInterval and Follow.SaveInterval must be positive")
	}
	if c.ProcessedStorage != "file" && c.ProcessedStorage != "redis" {
		return fmt.Errorf("ProcessedStorage must be file or redis, got %q", c.ProcessedStorage)
	}
	return nil
}

// ValidateFollow дополнительно проверяет поля, нужные только режиму follow
func (c *Config) ValidateFollow() error {
	if len(c.Follow.Directories) == 0 {
		return fmt.Errorf("Follow.Directories must not be empty")
	}
	if c.Follow.FilePattern == "" {
		return fmt.Errorf("Follow.FilePattern must not be empty")
	}
	if c.ProcessedStorage == "file" && c.ProcessedFile == "" {
		return fmt.Errorf("ProcessedFile must not be empty")
	}
	return nil
}
