// database/message_map.go
package database

import (
	"database/sql"
	"time"
)

// MessageMap связывает сообщение в чате пользователя с его копией в группе
// операторов. Записи только добавляются; пометка о прочтении обновляет
// существующую строку, но не удаляет ее.
type MessageMap struct {
	ID                   int64
	UserChatMessageID    int64
	GroupChatMessageID   int64
	UserTelegramID       int64
	FromGroup            bool
	SourceGroupID        int64
	SourceGroupName      string
	FromOperator         bool
	IsUnread             bool
	UnreadTopicMessageID int64
	HandledBy            int64
	HandledAt            sql.NullTime
	CreatedAt            time.Time
}
