// database/message_map_operations.go
package database

import (
	"database/sql"
	"log"
	"time"
)

const messageMapColumns = `id, user_chat_message_id, group_chat_message_id, user_telegram_id,
	from_group, source_group_id, source_group_name, from_operator, is_unread,
	unread_topic_message_id, handled_by, handled_at, created_at`

func scanMessageMap(row interface{ Scan(...interface{}) error }) (*MessageMap, error) {
	var m MessageMap
	err := row.Scan(&m.ID, &m.UserChatMessageID, &m.GroupChatMessageID, &m.UserTelegramID,
		&m.FromGroup, &m.SourceGroupID, &m.SourceGroupName, &m.FromOperator, &m.IsUnread,
		&m.UnreadTopicMessageID, &m.HandledBy, &m.HandledAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// RecordMessageMap сохраняет перекрестную ссылку между оригиналом и копией
func (s *Store) RecordMessageMap(m *MessageMap) error {
	res, err := s.db.Exec(`
		INSERT INTO message_map (user_chat_message_id, group_chat_message_id, user_telegram_id,
			from_group, source_group_id, source_group_name, from_operator, is_unread, unread_topic_message_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UserChatMessageID, m.GroupChatMessageID, m.UserTelegramID,
		m.FromGroup, m.SourceGroupID, m.SourceGroupName, m.FromOperator, m.IsUnread, m.UnreadTopicMessageID)
	if err != nil {
		log.Printf("❌ Ошибка сохранения связи сообщений (пользователь %d): %v", m.UserTelegramID, err)
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// MessageMapByOrigin находит связь по сообщению в чате пользователя
func (s *Store) MessageMapByOrigin(userMsgID, userTelegramID int64) (*MessageMap, error) {
	row := s.db.QueryRow(`
		SELECT `+messageMapColumns+` FROM message_map
		WHERE user_chat_message_id = ? AND user_telegram_id = ?
		ORDER BY id DESC LIMIT 1`,
		userMsgID, userTelegramID)
	m, err := scanMessageMap(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// MessageMapByMirror находит связь по копии в группе операторов
func (s *Store) MessageMapByMirror(groupMsgID int64) (*MessageMap, error) {
	row := s.db.QueryRow(`
		SELECT `+messageMapColumns+` FROM message_map
		WHERE group_chat_message_id = ?
		ORDER BY id DESC LIMIT 1`,
		groupMsgID)
	m, err := scanMessageMap(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// SetMessageUnread помечает сообщение непрочитанным и запоминает ID
// сигнального сообщения в системном топике (0, если сигнал не отправлялся)
func (s *Store) SetMessageUnread(id, alertMsgID int64) error {
	_, err := s.db.Exec(
		"UPDATE message_map SET is_unread = TRUE, unread_topic_message_id = ? WHERE id = ?",
		alertMsgID, id)
	return err
}

// HasUnread сообщает, есть ли у пользователя непрочитанные сообщения
// из данного источника
func (s *Store) HasUnread(userTelegramID int64, fromGroup bool, sourceGroupID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM message_map
		WHERE user_telegram_id = ? AND is_unread = TRUE AND from_group = ? AND source_group_id = ?`,
		userTelegramID, fromGroup, sourceGroupID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UnreadFor возвращает непрочитанные сообщения пользователя из данного источника
func (s *Store) UnreadFor(userTelegramID int64, fromGroup bool, sourceGroupID int64) ([]MessageMap, error) {
	rows, err := s.db.Query(`
		SELECT `+messageMapColumns+` FROM message_map
		WHERE user_telegram_id = ? AND is_unread = TRUE AND from_group = ? AND source_group_id = ?
		ORDER BY id`,
		userTelegramID, fromGroup, sourceGroupID)
	if err != nil {
		return nil, err
	}
	return collectMessageMaps(rows)
}

// UnreadAll возвращает все непрочитанные сообщения пользователя по всем источникам
func (s *Store) UnreadAll(userTelegramID int64) ([]MessageMap, error) {
	rows, err := s.db.Query(`
		SELECT `+messageMapColumns+` FROM message_map
		WHERE user_telegram_id = ? AND is_unread = TRUE
		ORDER BY id`,
		userTelegramID)
	if err != nil {
		return nil, err
	}
	return collectMessageMaps(rows)
}

// ListUnread возвращает непрочитанные сообщения для HTTP API
func (s *Store) ListUnread(limit, offset int) ([]MessageMap, error) {
	rows, err := s.db.Query(`
		SELECT `+messageMapColumns+` FROM message_map
		WHERE is_unread = TRUE
		ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	return collectMessageMaps(rows)
}

func collectMessageMaps(rows *sql.Rows) ([]MessageMap, error) {
	defer rows.Close()
	var maps []MessageMap
	for rows.Next() {
		m, err := scanMessageMap(rows)
		if err != nil {
			return nil, err
		}
		maps = append(maps, *m)
	}
	return maps, rows.Err()
}

// MarkMessagesHandled снимает флаг непрочитанности и фиксирует, кто и когда
// обработал сообщения
func (s *Store) MarkMessagesHandled(ids []int64, handlerID int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		_, err := s.db.Exec(`
			UPDATE message_map SET is_unread = FALSE, handled_by = ?, handled_at = ?
			WHERE id = ?`,
			handlerID, at, id)
		if err != nil {
			log.Printf("❌ Ошибка пометки сообщения %d обработанным: %v", id, err)
			return err
		}
	}
	log.Printf("✅ Помечено обработанными сообщений: %d (оператор %d)", len(ids), handlerID)
	return nil
}
