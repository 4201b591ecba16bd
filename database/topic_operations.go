// database/topic_operations.go
package database

import (
	"database/sql"
	"errors"
	"log"

	"github.com/go-sql-driver/mysql"
)

const topicColumns = `id, user_id, topic_id, topic_name, status, is_system, system_key,
	from_group, source_group_id, source_group_name, created_at, updated_at`

func scanTopic(row interface{ Scan(...interface{}) error }) (*Topic, error) {
	var t Topic
	err := row.Scan(&t.ID, &t.UserID, &t.TopicID, &t.TopicName, &t.Status,
		&t.IsSystem, &t.SystemKey, &t.FromGroup, &t.SourceGroupID, &t.SourceGroupName,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTopic находит несистемный топик пользователя для заданного источника.
// Возвращает (nil, nil), если топика нет.
func (s *Store) FindTopic(userID int64, fromGroup bool, sourceGroupID int64) (*Topic, error) {
	row := s.db.QueryRow(`
		SELECT `+topicColumns+` FROM topics
		WHERE user_id = ? AND from_group = ? AND source_group_id = ? AND is_system = FALSE`,
		userID, fromGroup, sourceGroupID)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// TopicByTopicID находит топик по его ID на платформе
func (s *Store) TopicByTopicID(topicID int64) (*Topic, error) {
	row := s.db.QueryRow("SELECT "+topicColumns+" FROM topics WHERE topic_id = ?", topicID)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// FindSystemTopic находит системный топик по его ключу
func (s *Store) FindSystemTopic(name string) (*Topic, error) {
	row := s.db.QueryRow(
		"SELECT "+topicColumns+" FROM topics WHERE is_system = TRUE AND system_key = ?", name)
	t, err := scanTopic(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTopicIfAbsent вставляет запись о топике. Уникальный индекс по
// (user_id, from_group, source_group_id, is_system) превращает гонку двух
// одновременных вставок в ошибку дублирования: проигравший получает уже
// существующую запись и created=false.
func (s *Store) CreateTopicIfAbsent(t *Topic) (*Topic, bool, error) {
	res, err := s.db.Exec(`
		INSERT INTO topics (user_id, topic_id, topic_name, status, is_system, system_key,
			from_group, source_group_id, source_group_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.TopicID, t.TopicName, TopicStatusOpened, t.IsSystem, t.SystemKey,
		t.FromGroup, t.SourceGroupID, t.SourceGroupName)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			// Проиграли гонку — отдаем запись победителя
			var existing *Topic
			var ferr error
			if t.IsSystem {
				existing, ferr = s.FindSystemTopic(t.SystemKey)
			} else {
				existing, ferr = s.FindTopic(t.UserID, t.FromGroup, t.SourceGroupID)
			}
			if ferr != nil {
				return nil, false, ferr
			}
			if existing != nil {
				log.Printf("⚠️ Топик для пользователя %d уже создан параллельно (topic_id=%d)", t.UserID, existing.TopicID)
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	id, _ := res.LastInsertId()
	t.ID = id
	t.Status = TopicStatusOpened
	log.Printf("✅ Зарегистрирован топик %d (пользователь %d)", t.TopicID, t.UserID)
	return t, true, nil
}

// UpdateTopicName обновляет сохраненный заголовок топика
func (s *Store) UpdateTopicName(topicID int64, name string) error {
	_, err := s.db.Exec("UPDATE topics SET topic_name = ? WHERE topic_id = ?", name, topicID)
	return err
}

// SetTopicStatus переводит топик в состояние opened/closed
func (s *Store) SetTopicStatus(topicID int64, status string) error {
	_, err := s.db.Exec("UPDATE topics SET status = ? WHERE topic_id = ?", status, topicID)
	if err == nil {
		log.Printf("✅ Топик %d переведен в состояние %s", topicID, status)
	}
	return err
}

// DeleteTopic удаляет запись о топике (используется при восстановлении
// после удаления топика на платформе)
func (s *Store) DeleteTopic(topicID int64) error {
	_, err := s.db.Exec("DELETE FROM topics WHERE topic_id = ?", topicID)
	if err == nil {
		log.Printf("⚠️ Запись о топике %d удалена", topicID)
	}
	return err
}

// ListTopics возвращает топики для HTTP API
func (s *Store) ListTopics(limit, offset int) ([]Topic, error) {
	rows, err := s.db.Query(
		"SELECT "+topicColumns+" FROM topics ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []Topic
	for rows.Next() {
		t, err := scanTopic(rows)
		if err != nil {
			return nil, err
		}
		topics = append(topics, *t)
	}
	return topics, rows.Err()
}
