// database/media_group.go
package database

import (
	"log"
	"time"
)

// MediaGroupPart — одно сообщение из серии альбома, ожидающее пересылки.
// Подпись хранится в сжатом виде (см. processor.CompressMessage).
type MediaGroupPart struct {
	ID           int64
	MediaGroupID string
	ChatID       int64
	MessageID    int64
	Caption      []byte
	CreatedAt    time.Time
}

// AddMediaGroupPart сохраняет часть альбома до срабатывания окна накопления
func (s *Store) AddMediaGroupPart(p *MediaGroupPart) error {
	res, err := s.db.Exec(`
		INSERT INTO media_group_messages (media_group_id, chat_id, message_id, caption)
		VALUES (?, ?, ?, ?)`,
		p.MediaGroupID, p.ChatID, p.MessageID, p.Caption)
	if err != nil {
		log.Printf("❌ Ошибка сохранения части медиагруппы %s: %v", p.MediaGroupID, err)
		return err
	}
	p.ID, _ = res.LastInsertId()
	return nil
}

// MediaGroupParts возвращает накопленные части альбома в порядке отправки
func (s *Store) MediaGroupParts(mediaGroupID string, chatID int64) ([]MediaGroupPart, error) {
	rows, err := s.db.Query(`
		SELECT id, media_group_id, chat_id, message_id, caption, created_at
		FROM media_group_messages
		WHERE media_group_id = ? AND chat_id = ?
		ORDER BY message_id`,
		mediaGroupID, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []MediaGroupPart
	for rows.Next() {
		var p MediaGroupPart
		if err := rows.Scan(&p.ID, &p.MediaGroupID, &p.ChatID, &p.MessageID, &p.Caption, &p.CreatedAt); err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// DeleteMediaGroupParts удаляет части альбома после пересылки
func (s *Store) DeleteMediaGroupParts(mediaGroupID string, chatID int64) error {
	_, err := s.db.Exec(
		"DELETE FROM media_group_messages WHERE media_group_id = ? AND chat_id = ?",
		mediaGroupID, chatID)
	return err
}
