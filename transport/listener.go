// transport/listener.go
package transport

import (
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/LilVoxy/support_bridge/relay"
	"github.com/gorilla/websocket"
)

const (
	// Время ожидания pong от сервера обновлений
	pongWait = 60 * time.Second

	// Период отправки ping (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер одного обновления
	maxUpdateSize = 1 << 20

	// Пауза перед переподключением после обрыва
	reconnectDelay = 5 * time.Second
)

// Engine — операции движка пересылки, которые вызывает слушатель
type Engine interface {
	OnUserMessage(info relay.UserInfo, msg relay.InboundMessage, src relay.SourceChannel) error
	OnOperatorThreadMessage(topicID int64, operator relay.UserInfo, msg relay.InboundMessage) error
	OnThreadClosed(topicID int64) error
	OnThreadReopened(topicID int64) error
	OnOperatorAction(a relay.OperatorAction) (string, error)
}

// Listener читает поток обновлений платформы по websocket и передает
// их движку пересылки
type Listener struct {
	updatesURL   string
	botUsername  string
	adminGroupID int64
	manager      Engine
	client       *Client
	done         chan struct{}
}

// NewListener создает слушателя потока обновлений
func NewListener(updatesURL, botUsername string, adminGroupID int64, manager Engine, client *Client) *Listener {
	return &Listener{
		updatesURL:   updatesURL,
		botUsername:  botUsername,
		adminGroupID: adminGroupID,
		manager:      manager,
		client:       client,
		done:         make(chan struct{}),
	}
}

// Схема обновления платформы (разбираются только нужные поля)

type updateEnvelope struct {
	UpdateID      int64           `json:"update_id"`
	Message       *messageUpdate  `json:"message"`
	CallbackQuery *callbackUpdate `json:"callback_query"`
}

type userPayload struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Username     string `json:"username"`
	LanguageCode string `json:"language_code"`
	IsPremium    bool   `json:"is_premium"`
}

type chatPayload struct {
	ID    int64  `json:"id"`
	Type  string `json:"type"`
	Title string `json:"title"`
}

type messageUpdate struct {
	MessageID       int64        `json:"message_id"`
	From            *userPayload `json:"from"`
	Chat            chatPayload  `json:"chat"`
	MessageThreadID int64        `json:"message_thread_id"`
	Text            string       `json:"text"`
	Caption         string       `json:"caption"`
	MediaGroupID    string       `json:"media_group_id"`
	ReplyToMessage  *struct {
		MessageID int64 `json:"message_id"`
	} `json:"reply_to_message"`
	Poll               *json.RawMessage `json:"poll"`
	ForumTopicClosed   *json.RawMessage `json:"forum_topic_closed"`
	ForumTopicReopened *json.RawMessage `json:"forum_topic_reopened"`
	ForumTopicCreated  *json.RawMessage `json:"forum_topic_created"`
}

type callbackUpdate struct {
	ID      string      `json:"id"`
	From    userPayload `json:"from"`
	Data    string      `json:"data"`
	Message *struct {
		MessageID int64       `json:"message_id"`
		Chat      chatPayload `json:"chat"`
	} `json:"message"`
}

// Run подключается к потоку обновлений и читает его до остановки,
// переподключаясь после обрывов
func (l *Listener) Run() {
	for {
		select {
		case <-l.done:
			return
		default:
		}

		if err := l.readPump(); err != nil {
			log.Printf("⚠️ Поток обновлений прерван: %v, переподключение через %v", err, reconnectDelay)
		}

		select {
		case <-l.done:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// Stop останавливает слушателя
func (l *Listener) Stop() {
	close(l.done)
}

func (l *Listener) readPump() error {
	conn, _, err := websocket.DefaultDialer.Dial(l.updatesURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Printf("✅ Подключение к потоку обновлений установлено: %s", l.updatesURL)

	conn.SetReadLimit(maxUpdateSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-l.done:
				conn.Close()
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("❌ Неожиданное закрытие потока обновлений: %v", err)
			}
			return err
		}

		var update updateEnvelope
		if err := json.Unmarshal(raw, &update); err != nil {
			log.Printf("⚠️ Ошибка разбора обновления: %v", err)
			continue
		}
		// Каждое обновление обрабатывается независимо: пока один вызов
		// транспорта пережидает повторы, остальные пользователи не ждут.
		// Гонки создания топиков разрешает уникальный ключ реестра.
		go l.dispatch(update)
	}
}

// dispatch маршрутизирует обновление в соответствующую операцию движка
func (l *Listener) dispatch(update updateEnvelope) {
	switch {
	case update.CallbackQuery != nil:
		l.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		l.handleMessage(update.Message)
	}
}

func (l *Listener) handleMessage(msg *messageUpdate) {
	// События жизненного цикла топиков приходят из группы операторов
	if msg.Chat.ID == l.adminGroupID {
		switch {
		case msg.ForumTopicClosed != nil:
			if err := l.manager.OnThreadClosed(msg.MessageThreadID); err != nil {
				log.Printf("❌ Ошибка обработки закрытия топика %d: %v", msg.MessageThreadID, err)
			}
			return
		case msg.ForumTopicReopened != nil:
			if err := l.manager.OnThreadReopened(msg.MessageThreadID); err != nil {
				log.Printf("❌ Ошибка обработки открытия топика %d: %v", msg.MessageThreadID, err)
			}
			return
		case msg.ForumTopicCreated != nil:
			return
		}
	}

	if msg.From == nil || msg.From.IsBot {
		return
	}
	info := relay.UserInfo{
		ID:           msg.From.ID,
		Username:     msg.From.Username,
		FirstName:    msg.From.FirstName,
		LastName:     msg.From.LastName,
		Premium:      msg.From.IsPremium,
		LanguageCode: msg.From.LanguageCode,
	}
	inbound := relay.InboundMessage{
		ChatID:       msg.Chat.ID,
		MessageID:    msg.MessageID,
		MediaGroupID: msg.MediaGroupID,
		Text:         msg.Text,
		Caption:      msg.Caption,
		Unsupported:  msg.Poll != nil,
	}
	if msg.ReplyToMessage != nil {
		inbound.ReplyToID = msg.ReplyToMessage.MessageID
	}

	switch {
	case msg.Chat.Type == "private":
		err := l.manager.OnUserMessage(info, inbound, relay.SourceChannel{})
		l.replyNotice(msg.Chat.ID, 0, err)

	case msg.Chat.ID == l.adminGroupID:
		if msg.MessageThreadID == 0 {
			return
		}
		err := l.manager.OnOperatorThreadMessage(msg.MessageThreadID, info, inbound)
		l.replyNotice(msg.Chat.ID, msg.MessageThreadID, err)

	default:
		// Сторонняя группа: мост реагирует только на упоминание бота
		if l.botUsername == "" || !strings.Contains(msg.Text+msg.Caption, "@"+l.botUsername) {
			return
		}
		src := relay.SourceChannel{
			FromGroup: true,
			GroupID:   msg.Chat.ID,
			GroupName: msg.Chat.Title,
		}
		err := l.manager.OnUserMessage(info, inbound, src)
		l.replyNotice(msg.Chat.ID, 0, err)
	}
}

// replyNotice отправляет отправителю текст отказа. Внутренние ошибки
// логируются и превращаются в общий ответ без деталей.
func (l *Listener) replyNotice(chatID, topicID int64, err error) {
	if err == nil {
		return
	}
	text, ok := relay.AsNotice(err)
	if !ok {
		log.Printf("❌ Ошибка обработки сообщения: %v", err)
		text = "Не удалось доставить сообщение. Попробуйте позже."
	}
	if _, serr := l.client.SendMessage(chatID, topicID, 0, text, nil); serr != nil {
		log.Printf("⚠️ Не удалось отправить уведомление об отказе: %v", serr)
	}
}

func (l *Listener) handleCallback(cb *callbackUpdate) {
	action, err := relay.ParseOperatorAction(cb.Data, cb.From.ID)
	if err != nil {
		log.Printf("⚠️ Некорректное действие оператора: %v", err)
		if aerr := l.client.AnswerCallback(cb.ID, "Неизвестное действие"); aerr != nil {
			log.Printf("⚠️ Ошибка ответа на действие: %v", aerr)
		}
		return
	}

	ack, err := l.manager.OnOperatorAction(action)
	if err != nil {
		log.Printf("❌ Ошибка выполнения действия %q: %v", cb.Data, err)
		ack = "Ошибка, попробуйте еще раз"
	}
	if aerr := l.client.AnswerCallback(cb.ID, ack); aerr != nil {
		log.Printf("⚠️ Ошибка ответа на действие: %v", aerr)
	}
}
