// database/topic.go
package database

import (
	"time"
)

// Статусы топика в группе операторов
const (
	TopicStatusOpened = "opened"
	TopicStatusClosed = "closed"
)

// Topic представляет ветку обсуждения в группе операторов.
// Обычный топик привязан к паре (пользователь, источник); системные топики
// (непрочитанные, спам) помечены is_system и не привязаны к пользователю.
type Topic struct {
	ID              int64
	UserID          int64
	TopicID         int64
	TopicName       string
	Status          string
	IsSystem        bool
	SystemKey       string
	FromGroup       bool
	SourceGroupID   int64
	SourceGroupName string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
