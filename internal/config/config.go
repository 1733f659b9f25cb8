package config

import (
	"fmt"
	"time"
)

// ClickHouseConfig содержит настройки подключения к ClickHouse
// Protocol: "native" или "http"
// HistoryTable может быть пустым — тогда журнал выполнения не пишется
type ClickHouseConfig struct {
	Address      string        `mapstructure:"Address" yaml:"Address"`
	Username     string        `mapstructure:"Username" yaml:"Username"`
	Password     string        `mapstructure:"Password" yaml:"Password"`
	Database     string        `mapstructure:"Database" yaml:"Database"`
	Protocol     string        `mapstructure:"Protocol" yaml:"Protocol"`
	DialTimeout  time.Duration `mapstructure:"DialTimeout" yaml:"DialTimeout"`
	QueryTimeout time.Duration `mapstructure:"QueryTimeout" yaml:"QueryTimeout"`
	HistoryTable string        `mapstructure:"HistoryTable" yaml:"HistoryTable"`
}

// ReplConfig — настройки интерактивного режима
type ReplConfig struct {
	Prompt             string `mapstructure:"Prompt" yaml:"Prompt"`
	ContinuationPrompt string `mapstructure:"ContinuationPrompt" yaml:"ContinuationPrompt"`
	HistoryFile        string `mapstructure:"HistoryFile" yaml:"HistoryFile"`
	StopOnError        bool   `mapstructure:"StopOnError" yaml:"StopOnError"`
	Timing             bool   `mapstructure:"Timing" yaml:"Timing"`
}

// FollowConfig — настройки режима слежения за SQL-файлами
type FollowConfig struct {
	Directories    []string      `mapstructure:"Directories" yaml:"Directories"`
	FilePattern    string        `mapstructure:"FilePattern" yaml:"FilePattern"`
	BatchSize      int           `mapstructure:"BatchSize" yaml:"BatchSize"`
	BatchInterval  time.Duration `mapstructure:"BatchInterval" yaml:"BatchInterval"`
	RescanInterval time.Duration `mapstructure:"RescanInterval" yaml:"RescanInterval"`
	SaveInterval   time.Duration `mapstructure:"SaveInterval" yaml:"SaveInterval"`
	IdleFlush      time.Duration `mapstructure:"IdleFlush" yaml:"IdleFlush"`
}

// RedisConfig содержит настройки подключения к Redis
type RedisConfig struct {
	Host     string `mapstructure:"Host" yaml:"Host"`
	Port     int    `mapstructure:"Port" yaml:"Port"`
	DB       int    `mapstructure:"DB" yaml:"DB"`
	Password string `mapstructure:"Password" yaml:"Password"`
	Key      string `mapstructure:"Key" yaml:"Key"`
}

// LoggingConfig содержит настройки логирования и интеграции с Sentry
type LoggingConfig struct {
	Level        string `mapstructure:"Level" yaml:"Level"`               // debug, info, warn, error
	LogFile      string `mapstructure:"LogFile" yaml:"LogFile"`           // путь к файлу логов
	SentryDSN    string `mapstructure:"SentryDSN" yaml:"SentryDSN"`       // DSN для Sentry
	EnableSentry bool   `mapstructure:"EnableSentry" yaml:"EnableSentry"` // включить отправку ошибок в Sentry
}

// Config описывает все настройки клиента
// Загружается из YAML, любое поле можно переопределить переменной окружения
// SQLPUMP_<СЕКЦИЯ>_<ПОЛЕ>, например SQLPUMP_CLICKHOUSE_ADDRESS
type Config struct {
	ClickHouse       ClickHouseConfig `mapstructure:"ClickHouse" yaml:"ClickHouse"`
	Repl             ReplConfig       `mapstructure:"Repl" yaml:"Repl"`
	Follow           FollowConfig     `mapstructure:"Follow" yaml:"Follow"`
	ProcessedStorage string           `mapstructure:"ProcessedStorage" yaml:"ProcessedStorage"` // "file" или "redis"
	ProcessedFile    string           `mapstructure:"ProcessedFile" yaml:"ProcessedFile"`
	Redis            RedisConfig      `mapstructure:"Redis" yaml:"Redis"`
	Logging          LoggingConfig    `mapstructure:"Logging" yaml:"Logging"`
}

// LoadConfig читает и парсит конфиг из YAML-файла по указанному пути.
// Пустой путь означает конфигурацию по умолчанию (с учётом переменных окружения).
// Шаги:
// 1. Чтение сырого файла
// 2. Очистка данных: удаление BOM, замена табуляций
// 3. Парсинг YAML через viper поверх значений по умолчанию
// 4. Валидация обязательных полей
func LoadConfig(path string) (*Config, error) {
	var raw []byte
	if path != "" {
		// 1. Чтение
		data, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		raw = data
	}

	// 2. Очистка
	sanitized := sanitize(raw)

	// 3. Парсинг
	cfg, err := parseYAML(sanitized)
	if err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	// 4. Валидация
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
