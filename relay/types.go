// relay/types.go
package relay

import (
	"time"

	"github.com/LilVoxy/support_bridge/config"
	"github.com/LilVoxy/support_bridge/database"
)

// SourceChannel описывает, откуда пришло обращение пользователя:
// личный чат с ботом или упоминание бота в сторонней группе
type SourceChannel struct {
	FromGroup bool
	GroupID   int64
	GroupName string
}

// UserInfo — профиль пользователя, как его сообщает платформа
type UserInfo struct {
	ID           int64
	Username     string
	FirstName    string
	LastName     string
	Premium      bool
	LanguageCode string
}

// FullName возвращает отображаемое имя
func (u UserInfo) FullName() string {
	if u.LastName != "" {
		return u.FirstName + " " + u.LastName
	}
	return u.FirstName
}

// InboundMessage — входящее сообщение, уже разобранное слушателем обновлений
type InboundMessage struct {
	ChatID       int64
	MessageID    int64
	ReplyToID    int64
	MediaGroupID string
	Text         string
	Caption      string

	// Контент, который платформа не дает скопировать (голосования и т.п.)
	Unsupported bool
}

// Action — кнопка под сообщением: либо callback с данными, либо ссылка
type Action struct {
	Label string
	Data  string
	URL   string
}

// UserStore — операции над пользователями
type UserStore interface {
	GetOrCreateUser(telegramID int64, username, firstName, lastName, languageCode string, premium bool) (*database.User, error)
	UserByTelegramID(telegramID int64) (*database.User, error)
	SetUserBanned(telegramID int64, banned bool) error
	SetUserLastGroup(telegramID, groupID int64, groupName string) error
}

// TopicStore — реестр топиков группы операторов
type TopicStore interface {
	FindTopic(userID int64, fromGroup bool, sourceGroupID int64) (*database.Topic, error)
	TopicByTopicID(topicID int64) (*database.Topic, error)
	FindSystemTopic(name string) (*database.Topic, error)
	CreateTopicIfAbsent(t *database.Topic) (*database.Topic, bool, error)
	UpdateTopicName(topicID int64, name string) error
	SetTopicStatus(topicID int64, status string) error
	DeleteTopic(topicID int64) error
}

// MessageMapStore — перекрестные ссылки сообщений и учет непрочитанного
type MessageMapStore interface {
	RecordMessageMap(m *database.MessageMap) error
	MessageMapByOrigin(userMsgID, userTelegramID int64) (*database.MessageMap, error)
	MessageMapByMirror(groupMsgID int64) (*database.MessageMap, error)
	SetMessageUnread(id, alertMsgID int64) error
	HasUnread(userTelegramID int64, fromGroup bool, sourceGroupID int64) (bool, error)
	UnreadFor(userTelegramID int64, fromGroup bool, sourceGroupID int64) ([]database.MessageMap, error)
	UnreadAll(userTelegramID int64) ([]database.MessageMap, error)
	MarkMessagesHandled(ids []int64, handlerID int64, at time.Time) error
}

// MediaGroupStore — накопитель частей альбомов
type MediaGroupStore interface {
	AddMediaGroupPart(p *database.MediaGroupPart) error
	MediaGroupParts(mediaGroupID string, chatID int64) ([]database.MediaGroupPart, error)
	DeleteMediaGroupParts(mediaGroupID string, chatID int64) error
}

// Transport — операции платформы, которые использует мост.
// Все методы возвращают ошибки, классифицируемые через KindOf.
type Transport interface {
	CreateTopic(name string) (int64, error)
	EditTopicName(topicID int64, name string) error
	DeleteTopic(topicID int64) error
	SendMessage(chatID, topicID, replyToID int64, text string, actions []Action) (int64, error)
	CopyMessage(fromChatID, messageID, toChatID, topicID, replyToID int64) (int64, error)
	CopyMessages(fromChatID int64, messageIDs []int64, toChatID, topicID int64) ([]int64, error)
	DeleteMessage(chatID, messageID int64) error
}

// Scheduler — отложенный одноразовый запуск именованных задач.
// ScheduleOnce идемпотентен по имени: повторный вызов при уже взведенной
// задаче ничего не меняет (проверка и взведение атомарны).
// Available() == false переводит накопитель альбомов в деградированный режим.
type Scheduler interface {
	ScheduleOnce(name string, delay time.Duration, task func()) error
	Scheduled(name string) bool
	Cancel(name string) error
	Available() bool
}

// Manager связывает хранилища, транспорт и планировщик в единый движок
// пересылки. Все зависимости — интерфейсы, что позволяет подменять их
// в тестах без реальной БД и сети.
type Manager struct {
	Users       UserStore
	Topics      TopicStore
	Messages    MessageMapStore
	MediaGroups MediaGroupStore
	Transport   Transport
	Scheduler   Scheduler

	AdminGroupID    int64
	AdminUserIDs    []int64
	BotID           int64
	BotUsername     string
	Retry           config.RetryConfig
	MediaGroupDelay time.Duration

	// Подменяется в тестах, чтобы не ждать реальные паузы повторов
	sleep func(time.Duration)
}

// NewManager создает движок пересылки поверх готовых зависимостей
func NewManager(store *database.Store, transport Transport, scheduler Scheduler, cfg config.Config) *Manager {
	return &Manager{
		Users:           store,
		Topics:          store,
		Messages:        store,
		MediaGroups:     store,
		Transport:       transport,
		Scheduler:       scheduler,
		AdminGroupID:    cfg.AdminGroupID,
		AdminUserIDs:    cfg.AdminUserIDs,
		BotID:           cfg.BotID,
		BotUsername:     cfg.BotUsername,
		Retry:           cfg.Retry,
		MediaGroupDelay: cfg.MediaGroupDelay,
		sleep:           time.Sleep,
	}
}

func (m *Manager) isAdmin(userID int64) bool {
	for _, id := range m.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
