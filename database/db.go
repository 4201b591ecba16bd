// database/db.go
package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Store инкапсулирует доступ к базе данных моста
type Store struct {
	db *sql.DB
}

// NewStore создает хранилище поверх готового соединения
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// InitDB устанавливает соединение с базой данных и проверяет схему
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		log.Printf("❌ Ошибка подключения к БД: %v", err)
		return nil, err
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		log.Printf("❌ Ошибка проверки соединения с БД: %v", err)
		return nil, err
	}

	// Устанавливаем параметры пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Println("✅ Успешное подключение к базе данных")

	// Проверяем существование необходимых таблиц
	if err := createTablesIfNotExist(db); err != nil {
		log.Printf("❌ Ошибка создания таблиц: %v", err)
		return nil, err
	}

	return db, nil
}

// Создание необходимых таблиц, если они не существуют
func createTablesIfNotExist(db *sql.DB) error {
	// SQL для создания таблицы пользователей
	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		telegram_id BIGINT NOT NULL UNIQUE,
		username VARCHAR(255) NOT NULL DEFAULT '',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		last_name VARCHAR(255) NOT NULL DEFAULT '',
		language_code VARCHAR(16) NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_premium BOOLEAN NOT NULL DEFAULT FALSE,
		last_group_id BIGINT NOT NULL DEFAULT 0,
		last_group_name VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	// SQL для создания таблицы топиков.
	// Уникальный индекс гарантирует не более одного несистемного топика
	// на пару (пользователь, источник) даже при одновременных вставках.
	createTopicsTable := `
	CREATE TABLE IF NOT EXISTS topics (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT NOT NULL DEFAULT 0,
		topic_id BIGINT NOT NULL UNIQUE,
		topic_name VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'opened',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		system_key VARCHAR(64) NOT NULL DEFAULT '',
		from_group BOOLEAN NOT NULL DEFAULT FALSE,
		source_group_id BIGINT NOT NULL DEFAULT 0,
		source_group_name VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
		UNIQUE KEY uniq_user_source (user_id, from_group, source_group_id, is_system, system_key),
		INDEX idx_topic_id (topic_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	// SQL для создания таблицы перекрестных ссылок сообщений
	createMessageMapTable := `
	CREATE TABLE IF NOT EXISTS message_map (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		user_chat_message_id BIGINT NOT NULL,
		group_chat_message_id BIGINT NOT NULL,
		user_telegram_id BIGINT NOT NULL,
		from_group BOOLEAN NOT NULL DEFAULT FALSE,
		source_group_id BIGINT NOT NULL DEFAULT 0,
		source_group_name VARCHAR(255) NOT NULL DEFAULT '',
		from_operator BOOLEAN NOT NULL DEFAULT FALSE,
		is_unread BOOLEAN NOT NULL DEFAULT FALSE,
		unread_topic_message_id BIGINT NOT NULL DEFAULT 0,
		handled_by BIGINT NOT NULL DEFAULT 0,
		handled_at TIMESTAMP NULL DEFAULT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_user_msg (user_telegram_id, user_chat_message_id),
		INDEX idx_group_msg (group_chat_message_id),
		INDEX idx_unread (user_telegram_id, is_unread, from_group, source_group_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	// SQL для создания таблицы частей медиагрупп
	createMediaGroupTable := `
	CREATE TABLE IF NOT EXISTS media_group_messages (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		media_group_id VARCHAR(64) NOT NULL,
		chat_id BIGINT NOT NULL,
		message_id BIGINT NOT NULL,
		caption BLOB,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		INDEX idx_media_group (media_group_id, chat_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;`

	for name, query := range map[string]string{
		"users":                createUsersTable,
		"topics":               createTopicsTable,
		"message_map":          createMessageMapTable,
		"media_group_messages": createMediaGroupTable,
	} {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("ошибка создания таблицы %s: %v", name, err)
		}
	}

	log.Println("✅ Структура базы данных проверена и актуализирована")
	return nil
}
