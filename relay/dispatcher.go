// relay/dispatcher.go
package relay

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/LilVoxy/support_bridge/database"
	"github.com/google/uuid"
)

// opID возвращает короткий идентификатор операции для связывания записей лога
func opID() string {
	return uuid.NewString()[:8]
}

// OnUserMessage обрабатывает входящее сообщение пользователя: проверяет
// блокировку, находит или создает топик и пересылает сообщение в группу
// операторов. Ошибка *Notice содержит текст отказа для отправителя.
func (m *Manager) OnUserMessage(info UserInfo, msg InboundMessage, src SourceChannel) error {
	op := opID()
	log.Printf("📥 [%s] Сообщение %d от пользователя %d (группа: %v)", op, msg.MessageID, info.ID, src.FromGroup)

	user, err := m.Users.GetOrCreateUser(info.ID, info.Username, info.FirstName, info.LastName, info.LanguageCode, info.Premium)
	if err != nil {
		return err
	}

	// Блокировка проверяется до любого накопления и пересылки
	if !user.IsActive {
		log.Printf("🚫 [%s] Сообщение от заблокированного пользователя %d отклонено", op, info.ID)
		return &Notice{Text: "Вы заблокированы и не можете отправлять сообщения."}
	}

	if src.FromGroup {
		if err := m.Users.SetUserLastGroup(info.ID, src.GroupID, src.GroupName); err != nil {
			log.Printf("⚠️ [%s] Ошибка сохранения группы пользователя %d: %v", op, info.ID, err)
		}
	}

	if msg.Unsupported {
		return &Notice{Text: "Этот тип контента не поддерживается."}
	}

	// Ответ пользователя на пересланное сообщение оператора означает,
	// что пользователь его увидел. Ответ на собственное сообщение
	// непрочитанность не снимает.
	if msg.ReplyToID != 0 {
		if rec, err := m.Messages.MessageMapByOrigin(msg.ReplyToID, info.ID); err == nil && rec != nil && rec.FromOperator {
			recSrc := SourceChannel{FromGroup: rec.FromGroup, GroupID: rec.SourceGroupID, GroupName: rec.SourceGroupName}
			if err := m.markHandled(info.ID, recSrc, m.BotID); err != nil {
				log.Printf("⚠️ [%s] Ошибка снятия непрочитанности: %v", op, err)
			}
		}
	}

	topic, err := m.ResolveOrCreateTopic(info, src)
	if err != nil {
		return err
	}
	if topic.Status == database.TopicStatusClosed {
		return &Notice{Text: "Обращение закрыто. Дождитесь, пока оператор откроет его снова."}
	}

	if msg.MediaGroupID != "" {
		return m.enqueueUserPart(info, src, msg)
	}
	return m.relaySingleUserMessage(info, src, msg)
}

// relaySingleUserMessage копирует одно сообщение пользователя в его топик.
// Устаревший топик пересоздается не более одного раза.
func (m *Manager) relaySingleUserMessage(info UserInfo, src SourceChannel, msg InboundMessage) error {
	topic, err := m.ResolveOrCreateTopic(info, src)
	if err != nil {
		return err
	}

	var replyTo int64
	if msg.ReplyToID != 0 {
		if rec, err := m.Messages.MessageMapByOrigin(msg.ReplyToID, info.ID); err == nil && rec != nil {
			replyTo = rec.GroupChatMessageID
		}
	}

	var mirror int64
	copyOne := func() error {
		id, err := m.Transport.CopyMessage(msg.ChatID, msg.MessageID, m.AdminGroupID, topic.TopicID, replyTo)
		if err != nil {
			return err
		}
		mirror = id
		return nil
	}

	err = m.invoke("copyUserMessage", copyOne)
	if err != nil && IsStale(err) {
		if derr := m.Topics.DeleteTopic(topic.TopicID); derr != nil {
			return derr
		}
		topic, err = m.ResolveOrCreateTopic(info, src)
		if err == nil {
			err = m.invoke("copyUserMessage", copyOne)
		}
	}
	if err != nil {
		if KindOf(err) == KindUnsupportedContent {
			return &Notice{Text: "Этот тип контента не поддерживается."}
		}
		return err
	}

	rec := &database.MessageMap{
		UserChatMessageID:  msg.MessageID,
		GroupChatMessageID: mirror,
		UserTelegramID:     info.ID,
		FromGroup:          src.FromGroup,
		SourceGroupID:      src.GroupID,
		SourceGroupName:    src.GroupName,
	}
	if err := m.Messages.RecordMessageMap(rec); err != nil {
		return err
	}

	m.notifyUnread(info, src, rec, topic.TopicID)
	return nil
}

// OnOperatorThreadMessage обрабатывает сообщение оператора внутри топика
// и пересылает его пользователю или в группу-источник
func (m *Manager) OnOperatorThreadMessage(topicID int64, operator UserInfo, msg InboundMessage) error {
	op := opID()

	topic, err := m.Topics.TopicByTopicID(topicID)
	if err != nil {
		return err
	}
	if topic == nil || topic.IsSystem {
		// Сообщения вне пользовательских топиков мост не касаются
		return nil
	}
	log.Printf("📤 [%s] Ответ оператора %d в топике %d (пользователь %d)", op, operator.ID, topicID, topic.UserID)

	if topic.Status == database.TopicStatusClosed {
		return &Notice{Text: "Обращение закрыто. Откройте топик, чтобы продолжить переписку."}
	}

	destChatID := topic.UserID
	if topic.FromGroup {
		destChatID = topic.SourceGroupID
	}

	if msg.MediaGroupID != "" {
		return m.enqueueOperatorPart(topic, operator, msg, destChatID)
	}
	return m.relaySingleOperatorMessage(topic, operator, msg, destChatID)
}

// relaySingleOperatorMessage доставляет одно сообщение оператора получателю.
// Для групповых обращений текст отправляется с упоминанием пользователя,
// прочие типы контента копируются как есть.
func (m *Manager) relaySingleOperatorMessage(topic *database.Topic, operator UserInfo, msg InboundMessage, destChatID int64) error {
	var replyTo int64
	if msg.ReplyToID != 0 {
		if rec, err := m.Messages.MessageMapByMirror(msg.ReplyToID); err == nil && rec != nil {
			replyTo = rec.UserChatMessageID
		}
	}

	var delivered int64
	deliver := func() error {
		if topic.FromGroup && msg.Text != "" {
			text := msg.Text
			if user, err := m.Users.UserByTelegramID(topic.UserID); err == nil && user != nil && user.Username != "" {
				text = "@" + user.Username + ", " + text
			}
			id, err := m.Transport.SendMessage(destChatID, 0, replyTo, text, nil)
			if err != nil {
				return err
			}
			delivered = id
			return nil
		}
		id, err := m.Transport.CopyMessage(m.AdminGroupID, msg.MessageID, destChatID, 0, replyTo)
		if err != nil {
			return err
		}
		delivered = id
		return nil
	}

	if err := m.invoke("deliverOperatorMessage", deliver); err != nil {
		if KindOf(err) == KindRecipientUnavailable {
			log.Printf("🚫 Пользователь %d недоступен (бот заблокирован или аккаунт удален)", topic.UserID)
			return &Notice{Text: "Сообщение не доставлено: пользователь заблокировал бота."}
		}
		return err
	}

	rec := &database.MessageMap{
		UserChatMessageID:  delivered,
		GroupChatMessageID: msg.MessageID,
		UserTelegramID:     topic.UserID,
		FromGroup:          topic.FromGroup,
		SourceGroupID:      topic.SourceGroupID,
		SourceGroupName:    topic.SourceGroupName,
		FromOperator:       true,
	}
	if err := m.Messages.RecordMessageMap(rec); err != nil {
		return err
	}

	// Ответ оператора означает, что обращение прочитано
	src := SourceChannel{FromGroup: topic.FromGroup, GroupID: topic.SourceGroupID, GroupName: topic.SourceGroupName}
	if err := m.markHandled(topic.UserID, src, operator.ID); err != nil {
		log.Printf("⚠️ Ошибка снятия непрочитанности (пользователь %d): %v", topic.UserID, err)
	}
	return nil
}

// OnThreadClosed фиксирует закрытие топика оператором и уведомляет пользователя
func (m *Manager) OnThreadClosed(topicID int64) error {
	return m.onThreadStatus(topicID, database.TopicStatusClosed,
		"Оператор закрыл обращение. Новые сообщения не принимаются.")
}

// OnThreadReopened фиксирует возобновление топика и уведомляет пользователя
func (m *Manager) OnThreadReopened(topicID int64) error {
	return m.onThreadStatus(topicID, database.TopicStatusOpened,
		"Обращение открыто снова. Можете продолжить переписку.")
}

func (m *Manager) onThreadStatus(topicID int64, status, notice string) error {
	topic, err := m.Topics.TopicByTopicID(topicID)
	if err != nil {
		return err
	}
	if topic == nil || topic.IsSystem {
		return nil
	}

	if err := m.Topics.SetTopicStatus(topicID, status); err != nil {
		return err
	}

	destChatID := topic.UserID
	if topic.FromGroup {
		destChatID = topic.SourceGroupID
	}
	err = m.invoke("notifyThreadStatus", func() error {
		_, err := m.Transport.SendMessage(destChatID, 0, 0, notice, nil)
		return err
	})
	if err != nil {
		log.Printf("⚠️ Не удалось уведомить пользователя %d о смене статуса: %v", topic.UserID, err)
	}
	return nil
}

// ActionKind — вид действия оператора, выбранного кнопкой
type ActionKind int

const (
	ActionUnknown ActionKind = iota

	// ActionMarkRead — пометить прочитанным обращение, к которому
	// относится сигнал (в пределах одного источника)
	ActionMarkRead

	// ActionMarkAllRead — пометить прочитанными все сообщения пользователя
	// по всем источникам
	ActionMarkAllRead

	// ActionBanToggle — заблокировать или разблокировать пользователя
	ActionBanToggle

	// ActionSpam — пометить прочитанным и перенести в топик спама
	ActionSpam
)

// OperatorAction — разобранное действие оператора
type OperatorAction struct {
	Kind      ActionKind
	TargetID  int64
	HandlerID int64
}

// ParseOperatorAction декодирует данные кнопки в действие.
// Разбор выполняется один раз на границе, дальше движок работает
// только с типизированным значением.
func ParseOperatorAction(data string, handlerID int64) (OperatorAction, error) {
	a := OperatorAction{HandlerID: handlerID}

	var raw string
	switch {
	case strings.HasPrefix(data, "read_all_"):
		a.Kind = ActionMarkAllRead
		raw = strings.TrimPrefix(data, "read_all_")
	case strings.HasPrefix(data, "read_"):
		a.Kind = ActionMarkRead
		raw = strings.TrimPrefix(data, "read_")
	case strings.HasPrefix(data, "ban_"):
		a.Kind = ActionBanToggle
		raw = strings.TrimPrefix(data, "ban_")
	case strings.HasPrefix(data, "spam_"):
		a.Kind = ActionSpam
		raw = strings.TrimPrefix(data, "spam_")
	default:
		return a, fmt.Errorf("неизвестное действие: %q", data)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return a, fmt.Errorf("некорректный идентификатор в действии %q: %v", data, err)
	}
	a.TargetID = id
	return a, nil
}

// OnOperatorAction выполняет действие оператора и возвращает текст
// подтверждения для всплывающего ответа
func (m *Manager) OnOperatorAction(a OperatorAction) (string, error) {
	switch a.Kind {
	case ActionMarkRead:
		rec, err := m.Messages.MessageMapByMirror(a.TargetID)
		if err != nil {
			return "", err
		}
		if rec == nil {
			return "Сообщение уже обработано", nil
		}
		src := SourceChannel{FromGroup: rec.FromGroup, GroupID: rec.SourceGroupID, GroupName: rec.SourceGroupName}
		if err := m.markHandled(rec.UserTelegramID, src, a.HandlerID); err != nil {
			return "", err
		}
		return "Прочитано", nil

	case ActionMarkAllRead:
		if err := m.markAllHandled(a.TargetID, a.HandlerID); err != nil {
			return "", err
		}
		return "Все сообщения прочитаны", nil

	case ActionBanToggle:
		if !m.isAdmin(a.HandlerID) {
			return "Недостаточно прав", nil
		}
		user, err := m.Users.UserByTelegramID(a.TargetID)
		if err != nil {
			return "", err
		}
		banned := user == nil || user.IsActive
		if err := m.Users.SetUserBanned(a.TargetID, banned); err != nil {
			return "", err
		}
		if banned {
			return "Пользователь заблокирован", nil
		}
		return "Пользователь разблокирован", nil

	case ActionSpam:
		return m.flagSpam(a)
	}
	return "", fmt.Errorf("неизвестный вид действия: %d", a.Kind)
}

// flagSpam помечает сообщение прочитанным и копирует его в топик спама
func (m *Manager) flagSpam(a OperatorAction) (string, error) {
	rec, err := m.Messages.MessageMapByMirror(a.TargetID)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "Сообщение уже обработано", nil
	}

	src := SourceChannel{FromGroup: rec.FromGroup, GroupID: rec.SourceGroupID, GroupName: rec.SourceGroupName}
	if err := m.markHandled(rec.UserTelegramID, src, a.HandlerID); err != nil {
		return "", err
	}

	topic, err := m.systemTopic(SpamTopicName)
	if err != nil {
		return "", err
	}

	copySpam := func() error {
		_, err := m.Transport.CopyMessage(m.AdminGroupID, rec.GroupChatMessageID, m.AdminGroupID, topic.TopicID, 0)
		return err
	}
	err = m.invoke("copySpam", copySpam)
	if err != nil && IsStale(err) {
		topic, err = m.recreateSystemTopic(topic)
		if err == nil {
			err = m.invoke("copySpam", copySpam)
		}
	}
	if err != nil {
		log.Printf("⚠️ Не удалось скопировать сообщение %d в топик спама: %v", rec.GroupChatMessageID, err)
	}
	return "Отмечено как спам", nil
}
