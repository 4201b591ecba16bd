// routes/user_handlers.go
package routes

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/LilVoxy/support_bridge/database"
	"github.com/gorilla/mux"
)

// UserInfo структура пользователя в ответах API
type UserInfo struct {
	TelegramID    int64     `json:"telegramId"`
	Username      string    `json:"username"`
	FirstName     string    `json:"firstName"`
	LastName      string    `json:"lastName"`
	LanguageCode  string    `json:"languageCode"`
	IsActive      bool      `json:"isActive"`
	IsPremium     bool      `json:"isPremium"`
	LastGroupID   int64     `json:"lastGroupId,omitempty"`
	LastGroupName string    `json:"lastGroupName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toUserInfo(u database.User) UserInfo {
	return UserInfo{
		TelegramID:    u.TelegramID,
		Username:      u.Username,
		FirstName:     u.FirstName,
		LastName:      u.LastName,
		LanguageCode:  u.LanguageCode,
		IsActive:      u.IsActive,
		IsPremium:     u.IsPremium,
		LastGroupID:   u.LastGroupID,
		LastGroupName: u.LastGroupName,
		CreatedAt:     u.CreatedAt,
	}
}

// pageParams извлекает параметры постраничного вывода
func pageParams(r *http.Request) (limit, offset int) {
	limit, offset = 50, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("❌ Ошибка сериализации ответа: %v", err)
	}
}

// ListUsersHandler обрабатывает запросы на получение списка пользователей
func ListUsersHandler(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)

		users, err := store.ListUsers(limit, offset)
		if err != nil {
			log.Printf("❌ Ошибка при запросе пользователей: %v", err)
			http.Error(w, "Ошибка при получении списка пользователей", http.StatusInternalServerError)
			return
		}

		result := make([]UserInfo, 0, len(users))
		for _, u := range users {
			result = append(result, toUserInfo(u))
		}
		writeJSON(w, map[string]interface{}{"users": result})
	}
}

// GetUserHandler обрабатывает запрос одного пользователя
func GetUserHandler(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["telegramId"], 10, 64)
		if err != nil {
			http.Error(w, "Неверный формат ID пользователя", http.StatusBadRequest)
			return
		}

		user, err := store.UserByTelegramID(id)
		if err != nil {
			log.Printf("❌ Ошибка при запросе пользователя %d: %v", id, err)
			http.Error(w, "Ошибка при получении пользователя", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "Пользователь не найден", http.StatusNotFound)
			return
		}
		writeJSON(w, toUserInfo(*user))
	}
}

// BanUserHandler переключает блокировку пользователя
func BanUserHandler(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["telegramId"], 10, 64)
		if err != nil {
			http.Error(w, "Неверный формат ID пользователя", http.StatusBadRequest)
			return
		}

		var body struct {
			Banned bool `json:"banned"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "Неверный формат тела запроса", http.StatusBadRequest)
			return
		}

		if err := store.SetUserBanned(id, body.Banned); err != nil {
			log.Printf("❌ Ошибка смены блокировки пользователя %d: %v", id, err)
			http.Error(w, "Ошибка смены блокировки", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"telegramId": id, "banned": body.Banned})
	}
}

// ListTopicsHandler обрабатывает запросы на получение списка топиков
func ListTopicsHandler(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)

		topics, err := store.ListTopics(limit, offset)
		if err != nil {
			log.Printf("❌ Ошибка при запросе топиков: %v", err)
			http.Error(w, "Ошибка при получении списка топиков", http.StatusInternalServerError)
			return
		}

		type topicInfo struct {
			UserID          int64  `json:"userId,omitempty"`
			TopicID         int64  `json:"topicId"`
			TopicName       string `json:"topicName"`
			Status          string `json:"status"`
			IsSystem        bool   `json:"isSystem"`
			FromGroup       bool   `json:"fromGroup"`
			SourceGroupID   int64  `json:"sourceGroupId,omitempty"`
			SourceGroupName string `json:"sourceGroupName,omitempty"`
		}
		result := make([]topicInfo, 0, len(topics))
		for _, t := range topics {
			result = append(result, topicInfo{
				UserID:          t.UserID,
				TopicID:         t.TopicID,
				TopicName:       t.TopicName,
				Status:          t.Status,
				IsSystem:        t.IsSystem,
				FromGroup:       t.FromGroup,
				SourceGroupID:   t.SourceGroupID,
				SourceGroupName: t.SourceGroupName,
			})
		}
		writeJSON(w, map[string]interface{}{"topics": result})
	}
}

// ListUnreadHandler обрабатывает запросы списка непрочитанных сообщений
func ListUnreadHandler(store *database.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)

		unread, err := store.ListUnread(limit, offset)
		if err != nil {
			log.Printf("❌ Ошибка при запросе непрочитанных: %v", err)
			http.Error(w, "Ошибка при получении непрочитанных сообщений", http.StatusInternalServerError)
			return
		}

		type unreadInfo struct {
			UserTelegramID  int64     `json:"userTelegramId"`
			MirrorMessageID int64     `json:"mirrorMessageId"`
			FromGroup       bool      `json:"fromGroup"`
			SourceGroupID   int64     `json:"sourceGroupId,omitempty"`
			SourceGroupName string    `json:"sourceGroupName,omitempty"`
			CreatedAt       time.Time `json:"createdAt"`
		}
		result := make([]unreadInfo, 0, len(unread))
		for _, m := range unread {
			result = append(result, unreadInfo{
				UserTelegramID:  m.UserTelegramID,
				MirrorMessageID: m.GroupChatMessageID,
				FromGroup:       m.FromGroup,
				SourceGroupID:   m.SourceGroupID,
				SourceGroupName: m.SourceGroupName,
				CreatedAt:       m.CreatedAt,
			})
		}
		writeJSON(w, map[string]interface{}{"unread": result})
	}
}
