// config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит конфигурацию моста поддержки
type Config struct {
	// Токен бота на платформе сообщений
	Token string

	// ID группы операторов (супергруппа с топиками)
	AdminGroupID int64

	// ID операторов, которым разрешены административные команды
	AdminUserIDs []int64

	// Имя бота для проверки упоминаний в группах
	BotUsername string

	// ID самого бота (используется как обработчик при авто-прочтении)
	BotID int64

	// DSN для подключения к MySQL
	DatabaseDSN string

	// Базовый URL API платформы
	APIBaseURL string

	// URL потока обновлений (websocket)
	UpdatesURL string

	// Адрес HTTP API
	ListenAddr string

	// Настройки повторов при сбоях транспорта
	Retry RetryConfig

	// Задержка перед отправкой накопленной медиагруппы
	MediaGroupDelay time.Duration
}

// RetryConfig содержит параметры экспоненциального повтора
type RetryConfig struct {
	MaxRetries  int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// Значения конфигурации по умолчанию
var DefaultConfig = Config{
	APIBaseURL: "https://api.telegram.org",
	ListenAddr: ":8080",
	Retry: RetryConfig{
		MaxRetries:  3,
		InitialWait: 1 * time.Second,
		MaxWait:     60 * time.Second,
	},
	MediaGroupDelay: 5 * time.Second,
}

// Load читает конфигурацию из переменных окружения
func Load() (Config, error) {
	cfg := DefaultConfig

	cfg.Token = os.Getenv("BRIDGE_TOKEN")
	if cfg.Token == "" {
		return cfg, fmt.Errorf("не задана переменная окружения BRIDGE_TOKEN")
	}

	groupID, err := strconv.ParseInt(os.Getenv("BRIDGE_ADMIN_GROUP_ID"), 10, 64)
	if err != nil {
		return cfg, fmt.Errorf("не задана или некорректна переменная BRIDGE_ADMIN_GROUP_ID: %v", err)
	}
	cfg.AdminGroupID = groupID

	for _, part := range strings.Split(os.Getenv("BRIDGE_ADMIN_IDS"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("⚠️ Пропущен некорректный ID оператора %q: %v", part, err)
			continue
		}
		cfg.AdminUserIDs = append(cfg.AdminUserIDs, id)
	}
	if len(cfg.AdminUserIDs) == 0 {
		log.Println("⚠️ Не задана переменная BRIDGE_ADMIN_IDS, административные команды будут недоступны")
	}

	cfg.BotUsername = os.Getenv("BRIDGE_BOT_USERNAME")

	if v := os.Getenv("BRIDGE_BOT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BotID = id
		}
	}

	cfg.DatabaseDSN = os.Getenv("BRIDGE_DB_DSN")
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "root:root@tcp(localhost:3306)/bridgedb?charset=utf8mb4&parseTime=True&loc=Local"
	}

	if v := os.Getenv("BRIDGE_API_URL"); v != "" {
		cfg.APIBaseURL = v
	}
	if v := os.Getenv("BRIDGE_UPDATES_URL"); v != "" {
		cfg.UpdatesURL = v
	}
	if v := os.Getenv("BRIDGE_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}

	if v := os.Getenv("BRIDGE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("BRIDGE_RETRY_INITIAL_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retry.InitialWait = d
		}
	}
	if v := os.Getenv("BRIDGE_RETRY_MAX_WAIT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Retry.MaxWait = d
		}
	}
	if v := os.Getenv("BRIDGE_MEDIA_GROUP_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.MediaGroupDelay = d
		}
	}

	return cfg, nil
}

// LogInfo выводит основные параметры конфигурации (токен маскируется)
func (c Config) LogInfo() {
	masked := c.Token
	if len(masked) > 10 {
		masked = masked[:5] + "..." + masked[len(masked)-5:]
	}
	log.Println("============= Конфигурация =============")
	log.Printf("Токен бота: %s", masked)
	log.Printf("Группа операторов: %d", c.AdminGroupID)
	log.Printf("Операторы: %v", c.AdminUserIDs)
	log.Printf("Повторы: до %d, ожидание %v..%v", c.Retry.MaxRetries, c.Retry.InitialWait, c.Retry.MaxWait)
	log.Printf("Окно медиагрупп: %v", c.MediaGroupDelay)
	log.Println("========================================")
}
