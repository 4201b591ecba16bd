// relay/unread.go
package relay

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/LilVoxy/support_bridge/database"
)

// topicDeepLink строит ссылку на топик в группе операторов
func topicDeepLink(adminGroupID, topicID int64) string {
	id := strconv.FormatInt(adminGroupID, 10)
	id = strings.TrimPrefix(id, "-100")
	id = strings.TrimPrefix(id, "-")
	return fmt.Sprintf("https://t.me/c/%s/%d", id, topicID)
}

// notifyUnread отмечает пересланное сообщение непрочитанным и при
// необходимости публикует сигнал в системном топике. Пока у пары
// (пользователь, источник) уже есть непрочитанные сообщения, новый сигнал
// не публикуется: строка лишь помечается, без повторного шума.
func (m *Manager) notifyUnread(info UserInfo, src SourceChannel, rec *database.MessageMap, userTopicID int64) {
	already, err := m.Messages.HasUnread(info.ID, src.FromGroup, src.GroupID)
	if err != nil {
		log.Printf("❌ Ошибка проверки непрочитанных (пользователь %d): %v", info.ID, err)
		return
	}

	if already {
		// Сигнал уже висит — достаточно пометить строку
		if err := m.Messages.SetMessageUnread(rec.ID, 0); err != nil {
			log.Printf("❌ Ошибка пометки сообщения %d непрочитанным: %v", rec.ID, err)
		}
		return
	}

	topic, err := m.systemTopic(UnreadTopicName)
	if err != nil {
		log.Printf("❌ Ошибка получения топика непрочитанных: %v", err)
		// Строку все равно помечаем, сигнал появится со следующим сообщением
		if err := m.Messages.SetMessageUnread(rec.ID, 0); err != nil {
			log.Printf("❌ Ошибка пометки сообщения %d непрочитанным: %v", rec.ID, err)
		}
		return
	}

	text := unreadAlertText(info, src)
	actions := []Action{
		{Label: "Перейти к обращению", URL: topicDeepLink(m.AdminGroupID, userTopicID)},
		{Label: "Прочитано", Data: fmt.Sprintf("read_%d", rec.GroupChatMessageID)},
		{Label: "Заблокировать", Data: fmt.Sprintf("ban_%d", info.ID)},
	}

	var alertID int64
	post := func() error {
		id, err := m.Transport.SendMessage(m.AdminGroupID, topic.TopicID, 0, text, actions)
		if err != nil {
			return err
		}
		alertID = id
		return nil
	}

	err = m.invoke("postUnreadAlert", post)
	if err != nil && IsStale(err) {
		// Системный топик снесли — пересоздаем один раз и повторяем
		topic, err = m.recreateSystemTopic(topic)
		if err == nil {
			err = m.invoke("postUnreadAlert", post)
		}
	}
	if err != nil {
		log.Printf("❌ Не удалось опубликовать сигнал о непрочитанном (пользователь %d): %v", info.ID, err)
		alertID = 0
	}

	if err := m.Messages.SetMessageUnread(rec.ID, alertID); err != nil {
		log.Printf("❌ Ошибка пометки сообщения %d непрочитанным: %v", rec.ID, err)
	}
}

func unreadAlertText(info UserInfo, src SourceChannel) string {
	var b strings.Builder
	b.WriteString("📬 Новое сообщение\n")
	if src.FromGroup {
		fmt.Fprintf(&b, "Источник: группа %s (%d)\n", src.GroupName, src.GroupID)
	} else {
		b.WriteString("Источник: личный чат\n")
	}
	name := info.FullName()
	if info.Premium {
		name = "💎 " + name
	}
	fmt.Fprintf(&b, "От: %s", name)
	if info.Username != "" {
		fmt.Fprintf(&b, " (@%s)", info.Username)
	}
	fmt.Fprintf(&b, "\nID: %d", info.ID)
	if info.LanguageCode != "" {
		fmt.Fprintf(&b, "\nЯзык: %s", info.LanguageCode)
	}
	return b.String()
}

// markHandled снимает непрочитанность для пары (пользователь, источник)
// и по возможности удаляет сигнальные сообщения из системного топика.
// Ошибки удаления сигналов логируются, но не прерывают операцию.
func (m *Manager) markHandled(userID int64, src SourceChannel, handlerID int64) error {
	rows, err := m.Messages.UnreadFor(userID, src.FromGroup, src.GroupID)
	if err != nil {
		return err
	}
	return m.clearUnreadRows(rows, handlerID)
}

// markAllHandled снимает непрочитанность по всем источникам пользователя
func (m *Manager) markAllHandled(userID, handlerID int64) error {
	rows, err := m.Messages.UnreadAll(userID)
	if err != nil {
		return err
	}
	return m.clearUnreadRows(rows, handlerID)
}

func (m *Manager) clearUnreadRows(rows []database.MessageMap, handlerID int64) error {
	if len(rows) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	if err := m.Messages.MarkMessagesHandled(ids, handlerID, time.Now()); err != nil {
		return err
	}

	for _, r := range rows {
		if r.UnreadTopicMessageID == 0 {
			continue
		}
		if err := m.Transport.DeleteMessage(m.AdminGroupID, r.UnreadTopicMessageID); err != nil {
			log.Printf("⚠️ Не удалось удалить сигнал %d: %v", r.UnreadTopicMessageID, err)
		}
	}
	return nil
}
