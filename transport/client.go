// transport/client.go
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/LilVoxy/support_bridge/relay"
)

// Client — адаптер HTTPS API платформы, реализующий relay.Transport.
// Все вызовы — POST <base>/bot<token>/<method> с JSON-телом.
type Client struct {
	baseURL      string
	token        string
	adminGroupID int64
	http         *http.Client
}

// NewClient создает адаптер API платформы
func NewClient(baseURL, token string, adminGroupID int64) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		token:        token,
		adminGroupID: adminGroupID,
		http:         &http.Client{Timeout: 30 * time.Second},
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
}

// call выполняет метод API и разбирает конверт ответа
func (c *Client) call(method string, payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return relay.NewTransportError(relay.KindOther, method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	resp, err := c.http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		// Сетевые сбои всегда временные
		return relay.NewTransportError(relay.KindTransient, method, err)
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return relay.NewTransportError(relay.KindTransient, method, err)
	}

	if !envelope.OK {
		return relay.NewTransportError(
			classify(envelope.ErrorCode, envelope.Description),
			method,
			fmt.Errorf("%d: %s", envelope.ErrorCode, envelope.Description),
		)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return relay.NewTransportError(relay.KindOther, method, err)
		}
	}
	return nil
}

// classify переводит код и описание ошибки платформы в класс таксономии
func classify(code int, description string) relay.ErrorKind {
	text := strings.ToLower(description)
	switch {
	case strings.Contains(text, "message thread not found"),
		strings.Contains(text, "chat not found"),
		strings.Contains(text, "topic_deleted"):
		return relay.KindStaleResource
	case code == 403,
		strings.Contains(text, "bot was blocked"),
		strings.Contains(text, "user is deactivated"),
		strings.Contains(text, "bot was kicked"):
		return relay.KindRecipientUnavailable
	case strings.Contains(text, "not enough rights"):
		return relay.KindPermissionDenied
	case strings.Contains(text, "can't be copied"),
		strings.Contains(text, "can't be forwarded"):
		return relay.KindUnsupportedContent
	case strings.Contains(text, "message to copy not found"),
		strings.Contains(text, "message to delete not found"):
		return relay.KindNotFound
	case code == 429, code >= 500:
		return relay.KindTransient
	}
	return relay.KindOther
}

// inlineKeyboard собирает разметку кнопок из действий
func inlineKeyboard(actions []relay.Action) map[string]interface{} {
	if len(actions) == 0 {
		return nil
	}
	rows := make([][]map[string]string, 0, len(actions))
	for _, a := range actions {
		button := map[string]string{"text": a.Label}
		if a.URL != "" {
			button["url"] = a.URL
		} else {
			button["callback_data"] = a.Data
		}
		rows = append(rows, []map[string]string{button})
	}
	return map[string]interface{}{"inline_keyboard": rows}
}

// CreateTopic создает топик в группе операторов
func (c *Client) CreateTopic(name string) (int64, error) {
	var result struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	err := c.call("createForumTopic", map[string]interface{}{
		"chat_id": c.adminGroupID,
		"name":    name,
	}, &result)
	if err != nil {
		return 0, err
	}
	return result.MessageThreadID, nil
}

// EditTopicName переименовывает топик
func (c *Client) EditTopicName(topicID int64, name string) error {
	return c.call("editForumTopic", map[string]interface{}{
		"chat_id":           c.adminGroupID,
		"message_thread_id": topicID,
		"name":              name,
	}, nil)
}

// DeleteTopic удаляет топик из группы операторов
func (c *Client) DeleteTopic(topicID int64) error {
	return c.call("deleteForumTopic", map[string]interface{}{
		"chat_id":           c.adminGroupID,
		"message_thread_id": topicID,
	}, nil)
}

// SendMessage отправляет текстовое сообщение, при необходимости — с кнопками
func (c *Client) SendMessage(chatID, topicID, replyToID int64, text string, actions []relay.Action) (int64, error) {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    text,
	}
	if topicID != 0 {
		payload["message_thread_id"] = topicID
	}
	if replyToID != 0 {
		payload["reply_to_message_id"] = replyToID
		payload["allow_sending_without_reply"] = true
	}
	if kb := inlineKeyboard(actions); kb != nil {
		payload["reply_markup"] = kb
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call("sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// CopyMessage копирует одно сообщение без ссылки на отправителя
func (c *Client) CopyMessage(fromChatID, messageID, toChatID, topicID, replyToID int64) (int64, error) {
	payload := map[string]interface{}{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}
	if topicID != 0 {
		payload["message_thread_id"] = topicID
	}
	if replyToID != 0 {
		payload["reply_to_message_id"] = replyToID
		payload["allow_sending_without_reply"] = true
	}

	var result struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call("copyMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

// CopyMessages копирует серию сообщений одним вызовом, сохраняя порядок
func (c *Client) CopyMessages(fromChatID int64, messageIDs []int64, toChatID, topicID int64) ([]int64, error) {
	payload := map[string]interface{}{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_ids":  messageIDs,
	}
	if topicID != 0 {
		payload["message_thread_id"] = topicID
	}

	var result []struct {
		MessageID int64 `json:"message_id"`
	}
	if err := c.call("copyMessages", payload, &result); err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(result))
	for _, r := range result {
		ids = append(ids, r.MessageID)
	}
	return ids, nil
}

// DeleteMessage удаляет сообщение
func (c *Client) DeleteMessage(chatID, messageID int64) error {
	return c.call("deleteMessage", map[string]interface{}{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// AnswerCallback подтверждает нажатие кнопки всплывающим текстом
func (c *Client) AnswerCallback(callbackID, text string) error {
	return c.call("answerCallbackQuery", map[string]interface{}{
		"callback_query_id": callbackID,
		"text":              text,
	}, nil)
}
