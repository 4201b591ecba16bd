// database/user.go
package database

import (
	"time"
)

// User представляет конечного пользователя, известного мосту.
// Запись создается при первом входящем событии и никогда не удаляется.
type User struct {
	ID            int64
	TelegramID    int64
	Username      string
	FirstName     string
	LastName      string
	LanguageCode  string
	IsActive      bool
	IsPremium     bool
	LastGroupID   int64
	LastGroupName string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FullName возвращает отображаемое имя пользователя
func (u *User) FullName() string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}
