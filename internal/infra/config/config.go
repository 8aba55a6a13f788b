package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию процессов. Здесь только инфраструктура:
// настройки самого планирования живут в хранилище опций и перечитываются
// в начале каждого запуска.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queue struct {
		Backend string `envconfig:"QUEUE_BACKEND" default:"redis"`
		RunsKey string `envconfig:"RUN_QUEUE_KEY" default:"drip_runs"`
	} `envconfig:""`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		AdminChatID int64  `envconfig:"TG_ADMIN_CHAT_ID"`
	} `envconfig:""`

	Schedule struct {
		// Cadence — период фонового триггера (раз или два в сутки).
		Cadence time.Duration `envconfig:"SCHEDULE_CADENCE" default:"12h"`
	} `envconfig:""`

	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
