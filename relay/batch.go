// relay/batch.go
package relay

import (
	"fmt"
	"log"

	"github.com/LilVoxy/support_bridge/database"
	"github.com/LilVoxy/support_bridge/processor"
)

// Направления пересылки альбомов
const (
	dirUserToAdmin = "u2a"
	dirAdminToUser = "a2u"
)

func mediaGroupJobName(mediaGroupID string, fromChatID, toChatID int64, dir string) string {
	return fmt.Sprintf("mediagroup_%s_%d_%d_%s", mediaGroupID, fromChatID, toChatID, dir)
}

// schedulerDegraded сообщает, что планировщик недоступен и накопление
// альбомов невозможно: части пересылаются сразу поодиночке
func (m *Manager) schedulerDegraded() bool {
	return m.Scheduler == nil || !m.Scheduler.Available()
}

// storeMediaGroupPart сохраняет часть альбома; подпись сжимается перед записью
func (m *Manager) storeMediaGroupPart(msg InboundMessage) error {
	var caption []byte
	if msg.Caption != "" {
		caption = processor.CompressCaption(msg.Caption)
	}
	return m.MediaGroups.AddMediaGroupPart(&database.MediaGroupPart{
		MediaGroupID: msg.MediaGroupID,
		ChatID:       msg.ChatID,
		MessageID:    msg.MessageID,
		Caption:      caption,
	})
}

// enqueueUserPart ставит часть пользовательского альбома в очередь.
// Первая часть взводит одноразовую задачу с окном накопления; последующие
// части серии находят уже взведенную задачу по имени и ничего не планируют.
func (m *Manager) enqueueUserPart(info UserInfo, src SourceChannel, msg InboundMessage) error {
	if m.schedulerDegraded() {
		// Деградированный режим: без окна, по одному сообщению
		log.Printf("⚠️ Планировщик недоступен, часть альбома %s пересылается сразу", msg.MediaGroupID)
		return m.relaySingleUserMessage(info, src, msg)
	}

	if err := m.storeMediaGroupPart(msg); err != nil {
		return err
	}

	name := mediaGroupJobName(msg.MediaGroupID, msg.ChatID, m.AdminGroupID, dirUserToAdmin)
	mediaGroupID := msg.MediaGroupID
	fromChatID := msg.ChatID
	err := m.Scheduler.ScheduleOnce(name, m.MediaGroupDelay, func() {
		m.flushUserMediaGroup(info, src, mediaGroupID, fromChatID)
	})
	if err != nil {
		// Задачу взвести не удалось — отправляем накопленное немедленно
		log.Printf("⚠️ Не удалось запланировать отправку альбома %s: %v", mediaGroupID, err)
		m.flushUserMediaGroup(info, src, mediaGroupID, fromChatID)
	}
	return nil
}

// flushUserMediaGroup отправляет накопленный альбом пользователя в топик
// одним вызовом, сохраняя порядок частей
func (m *Manager) flushUserMediaGroup(info UserInfo, src SourceChannel, mediaGroupID string, fromChatID int64) {
	parts, err := m.MediaGroups.MediaGroupParts(mediaGroupID, fromChatID)
	if err != nil {
		log.Printf("❌ Ошибка чтения частей альбома %s: %v", mediaGroupID, err)
		return
	}
	if len(parts) == 0 {
		return
	}

	topic, err := m.ResolveOrCreateTopic(info, src)
	if err != nil {
		log.Printf("❌ Ошибка получения топика для альбома %s: %v", mediaGroupID, err)
		return
	}

	messageIDs := make([]int64, 0, len(parts))
	for _, p := range parts {
		messageIDs = append(messageIDs, p.MessageID)
	}

	var mirrors []int64
	copyAll := func() error {
		ids, err := m.Transport.CopyMessages(fromChatID, messageIDs, m.AdminGroupID, topic.TopicID)
		if err != nil {
			return err
		}
		mirrors = ids
		return nil
	}

	err = m.invoke("copyMediaGroup", copyAll)
	if err != nil && IsStale(err) {
		// Топик исчез между resolve и отправкой — однократное пересоздание
		if derr := m.Topics.DeleteTopic(topic.TopicID); derr != nil {
			log.Printf("❌ Ошибка удаления устаревшего топика %d: %v", topic.TopicID, derr)
			return
		}
		topic, err = m.ResolveOrCreateTopic(info, src)
		if err == nil {
			err = m.invoke("copyMediaGroup", copyAll)
		}
	}
	if err != nil {
		log.Printf("❌ Не удалось переслать альбом %s: %v", mediaGroupID, err)
		return
	}

	if caption := firstCaption(parts); caption != "" {
		log.Printf("📨 Альбом %s (%d частей): %s", mediaGroupID, len(parts), caption)
	} else {
		log.Printf("📨 Альбом %s (%d частей) переслан в топик %d", mediaGroupID, len(parts), topic.TopicID)
	}

	for i, p := range parts {
		if i >= len(mirrors) {
			break
		}
		rec := &database.MessageMap{
			UserChatMessageID:  p.MessageID,
			GroupChatMessageID: mirrors[i],
			UserTelegramID:     info.ID,
			FromGroup:          src.FromGroup,
			SourceGroupID:      src.GroupID,
			SourceGroupName:    src.GroupName,
		}
		if err := m.Messages.RecordMessageMap(rec); err != nil {
			continue
		}
		if i == 0 {
			// Один сигнал на весь альбом
			m.notifyUnread(info, src, rec, topic.TopicID)
		} else {
			if err := m.Messages.SetMessageUnread(rec.ID, 0); err != nil {
				log.Printf("⚠️ Ошибка пометки части альбома %d: %v", rec.ID, err)
			}
		}
	}

	if err := m.MediaGroups.DeleteMediaGroupParts(mediaGroupID, fromChatID); err != nil {
		log.Printf("⚠️ Ошибка очистки частей альбома %s: %v", mediaGroupID, err)
	}
}

// enqueueOperatorPart ставит часть альбома оператора в очередь на отправку
// пользователю (или в группу-источник)
func (m *Manager) enqueueOperatorPart(topic *database.Topic, operator UserInfo, msg InboundMessage, destChatID int64) error {
	if m.schedulerDegraded() {
		log.Printf("⚠️ Планировщик недоступен, часть альбома %s пересылается сразу", msg.MediaGroupID)
		return m.relaySingleOperatorMessage(topic, operator, msg, destChatID)
	}

	if err := m.storeMediaGroupPart(msg); err != nil {
		return err
	}

	name := mediaGroupJobName(msg.MediaGroupID, msg.ChatID, destChatID, dirAdminToUser)
	mediaGroupID := msg.MediaGroupID
	fromChatID := msg.ChatID
	err := m.Scheduler.ScheduleOnce(name, m.MediaGroupDelay, func() {
		m.flushOperatorMediaGroup(topic, operator, mediaGroupID, fromChatID, destChatID)
	})
	if err != nil {
		log.Printf("⚠️ Не удалось запланировать отправку альбома %s: %v", mediaGroupID, err)
		m.flushOperatorMediaGroup(topic, operator, mediaGroupID, fromChatID, destChatID)
	}
	return nil
}

// flushOperatorMediaGroup отправляет альбом оператора получателю одним
// вызовом и снимает непрочитанность обращения
func (m *Manager) flushOperatorMediaGroup(topic *database.Topic, operator UserInfo, mediaGroupID string, fromChatID, destChatID int64) {
	parts, err := m.MediaGroups.MediaGroupParts(mediaGroupID, fromChatID)
	if err != nil {
		log.Printf("❌ Ошибка чтения частей альбома %s: %v", mediaGroupID, err)
		return
	}
	if len(parts) == 0 {
		return
	}

	messageIDs := make([]int64, 0, len(parts))
	for _, p := range parts {
		messageIDs = append(messageIDs, p.MessageID)
	}

	var mirrors []int64
	err = m.invoke("copyMediaGroup", func() error {
		ids, err := m.Transport.CopyMessages(fromChatID, messageIDs, destChatID, 0)
		if err != nil {
			return err
		}
		mirrors = ids
		return nil
	})
	if err != nil {
		log.Printf("❌ Не удалось переслать альбом %s пользователю %d: %v", mediaGroupID, topic.UserID, err)
		return
	}

	for i, p := range parts {
		if i >= len(mirrors) {
			break
		}
		rec := &database.MessageMap{
			UserChatMessageID:  mirrors[i],
			GroupChatMessageID: p.MessageID,
			UserTelegramID:     topic.UserID,
			FromGroup:          topic.FromGroup,
			SourceGroupID:      topic.SourceGroupID,
			SourceGroupName:    topic.SourceGroupName,
			FromOperator:       true,
		}
		if err := m.Messages.RecordMessageMap(rec); err != nil {
			log.Printf("⚠️ Ошибка сохранения связи части альбома: %v", err)
		}
	}

	// Ответ оператора означает, что обращение прочитано
	src := SourceChannel{FromGroup: topic.FromGroup, GroupID: topic.SourceGroupID, GroupName: topic.SourceGroupName}
	if err := m.markHandled(topic.UserID, src, operator.ID); err != nil {
		log.Printf("⚠️ Ошибка снятия непрочитанности (пользователь %d): %v", topic.UserID, err)
	}

	if err := m.MediaGroups.DeleteMediaGroupParts(mediaGroupID, fromChatID); err != nil {
		log.Printf("⚠️ Ошибка очистки частей альбома %s: %v", mediaGroupID, err)
	}
}

func firstCaption(parts []database.MediaGroupPart) string {
	for _, p := range parts {
		if len(p.Caption) == 0 {
			continue
		}
		text, err := processor.DecompressCaption(p.Caption)
		if err != nil {
			return string(p.Caption)
		}
		return text
	}
	return ""
}
