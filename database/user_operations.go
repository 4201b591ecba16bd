// database/user_operations.go
package database

import (
	"database/sql"
	"log"
)

const userColumns = `id, telegram_id, username, first_name, last_name, language_code,
	is_active, is_premium, last_group_id, last_group_name, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.FirstName, &u.LastName,
		&u.LanguageCode, &u.IsActive, &u.IsPremium, &u.LastGroupID, &u.LastGroupName,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByTelegramID находит пользователя по его ID на платформе.
// Возвращает (nil, nil), если пользователь не найден.
func (s *Store) UserByTelegramID(telegramID int64) (*User, error) {
	row := s.db.QueryRow("SELECT "+userColumns+" FROM users WHERE telegram_id = ?", telegramID)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetOrCreateUser находит пользователя или создает новую запись при первом
// обращении. Для существующего пользователя обновляются имя и признак
// премиум-статуса, пришедшие с платформы.
func (s *Store) GetOrCreateUser(telegramID int64, username, firstName, lastName, languageCode string, premium bool) (*User, error) {
	u, err := s.UserByTelegramID(telegramID)
	if err != nil {
		return nil, err
	}

	if u == nil {
		_, err := s.db.Exec(`
			INSERT INTO users (telegram_id, username, first_name, last_name, language_code, is_premium)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE username = VALUES(username)`,
			telegramID, username, firstName, lastName, languageCode, premium)
		if err != nil {
			log.Printf("❌ Ошибка создания пользователя %d: %v", telegramID, err)
			return nil, err
		}
		log.Printf("👤 Создан новый пользователь %d (@%s)", telegramID, username)
		return s.UserByTelegramID(telegramID)
	}

	// Освежаем профиль, если он изменился на стороне платформы
	if u.Username != username || u.FirstName != firstName || u.LastName != lastName || u.IsPremium != premium {
		_, err := s.db.Exec(`
			UPDATE users SET username = ?, first_name = ?, last_name = ?, is_premium = ?
			WHERE telegram_id = ?`,
			username, firstName, lastName, premium, telegramID)
		if err != nil {
			log.Printf("⚠️ Ошибка обновления профиля пользователя %d: %v", telegramID, err)
		} else {
			u.Username = username
			u.FirstName = firstName
			u.LastName = lastName
			u.IsPremium = premium
		}
	}

	return u, nil
}

// SetUserBanned переключает флаг блокировки пользователя.
// Если записи нет, она создается сразу в заблокированном состоянии.
func (s *Store) SetUserBanned(telegramID int64, banned bool) error {
	res, err := s.db.Exec("UPDATE users SET is_active = ? WHERE telegram_id = ?", !banned, telegramID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		_, err = s.db.Exec(`
			INSERT INTO users (telegram_id, is_active) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE is_active = VALUES(is_active)`,
			telegramID, !banned)
		if err != nil {
			return err
		}
	}
	if banned {
		log.Printf("🚫 Пользователь %d заблокирован", telegramID)
	} else {
		log.Printf("✅ Пользователь %d разблокирован", telegramID)
	}
	return nil
}

// SetUserLastGroup запоминает последнюю группу, из которой пользователь
// обратился к боту
func (s *Store) SetUserLastGroup(telegramID, groupID int64, groupName string) error {
	_, err := s.db.Exec(
		"UPDATE users SET last_group_id = ?, last_group_name = ? WHERE telegram_id = ?",
		groupID, groupName, telegramID)
	return err
}

// ListUsers возвращает пользователей для HTTP API
func (s *Store) ListUsers(limit, offset int) ([]User, error) {
	rows, err := s.db.Query(
		"SELECT "+userColumns+" FROM users ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
