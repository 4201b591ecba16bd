// relay/registry.go
package relay

import (
	"fmt"
	"log"

	"github.com/LilVoxy/support_bridge/database"
)

const (
	// Максимальная длина заголовка топика на платформе
	MaxTopicNameLen = 64

	// Имена системных топиков
	UnreadTopicName = "Непрочитанные сообщения"
	SpamTopicName   = "Спам"
)

// TopicLabel собирает заголовок топика: признак группового источника,
// премиум-отметка, имя пользователя, имя группы-источника
func TopicLabel(info UserInfo, src SourceChannel) string {
	label := ""
	if src.FromGroup {
		label += "[группа] "
	}
	if info.Premium {
		label += "💎 "
	}
	label += info.FullName()
	if src.FromGroup && src.GroupName != "" {
		label += " - " + src.GroupName
	}
	return truncateRunes(label, MaxTopicNameLen)
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ResolveOrCreateTopic возвращает топик пользователя для данного источника,
// создавая его при необходимости. Создание идемпотентно: при гонке двух
// обновлений выживает одна запись, дубликат на платформе удаляется.
func (m *Manager) ResolveOrCreateTopic(info UserInfo, src SourceChannel) (*database.Topic, error) {
	topic, err := m.Topics.FindTopic(info.ID, src.FromGroup, src.GroupID)
	if err != nil {
		return nil, err
	}

	if topic != nil {
		// Заголовок мог устареть (смена имени, премиум-статуса)
		label := TopicLabel(info, src)
		if topic.TopicName != label {
			err := m.invoke("editTopicName", func() error {
				return m.Transport.EditTopicName(topic.TopicID, label)
			})
			if err != nil {
				if IsStale(err) {
					// Топик удален на платформе — забываем запись и создаем заново
					log.Printf("⚠️ Топик %d удален на платформе, пересоздание", topic.TopicID)
					if derr := m.Topics.DeleteTopic(topic.TopicID); derr != nil {
						return nil, derr
					}
					return m.createTopic(info, src)
				}
				return nil, err
			}
			if err := m.Topics.UpdateTopicName(topic.TopicID, label); err != nil {
				return nil, err
			}
			topic.TopicName = label
		}
		return topic, nil
	}

	return m.createTopic(info, src)
}

func (m *Manager) createTopic(info UserInfo, src SourceChannel) (*database.Topic, error) {
	label := TopicLabel(info, src)

	var topicID int64
	err := m.invoke("createTopic", func() error {
		id, err := m.Transport.CreateTopic(label)
		if err != nil {
			return err
		}
		topicID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	topic, created, err := m.Topics.CreateTopicIfAbsent(&database.Topic{
		UserID:          info.ID,
		TopicID:         topicID,
		TopicName:       label,
		FromGroup:       src.FromGroup,
		SourceGroupID:   src.GroupID,
		SourceGroupName: src.GroupName,
	})
	if err != nil {
		return nil, err
	}

	if !created {
		// Проиграли гонку: наш топик на платформе лишний
		if derr := m.Transport.DeleteTopic(topicID); derr != nil {
			log.Printf("⚠️ Не удалось удалить дубликат топика %d: %v", topicID, derr)
		}
		return topic, nil
	}

	m.sendTopicIntro(topic, info, src)
	return topic, nil
}

// sendTopicIntro публикует в новый топик карточку пользователя с кнопками
// управления. Ошибка не фатальна для пересылки.
func (m *Manager) sendTopicIntro(topic *database.Topic, info UserInfo, src SourceChannel) {
	premium := "нет"
	if info.Premium {
		premium = "да"
	}
	text := fmt.Sprintf("👤 %s\nID: %d\nUsername: @%s\nПремиум: %s",
		info.FullName(), info.ID, info.Username, premium)
	if info.LanguageCode != "" {
		text += "\nЯзык: " + info.LanguageCode
	}
	if src.FromGroup {
		text += fmt.Sprintf("\nИсточник: группа %s (%d)", src.GroupName, src.GroupID)
	}

	actions := []Action{
		{Label: "Прочитать все", Data: fmt.Sprintf("read_all_%d", info.ID)},
		{Label: "Заблокировать", Data: fmt.Sprintf("ban_%d", info.ID)},
	}

	err := m.invoke("sendTopicIntro", func() error {
		_, err := m.Transport.SendMessage(m.AdminGroupID, topic.TopicID, 0, text, actions)
		return err
	})
	if err != nil {
		log.Printf("⚠️ Не удалось отправить карточку пользователя %d в топик %d: %v", info.ID, topic.TopicID, err)
	}
}

// systemTopic возвращает системный топик с данным именем, создавая его
// при первом обращении
func (m *Manager) systemTopic(name string) (*database.Topic, error) {
	topic, err := m.Topics.FindSystemTopic(name)
	if err != nil {
		return nil, err
	}
	if topic != nil {
		return topic, nil
	}

	var topicID int64
	err = m.invoke("createSystemTopic", func() error {
		id, err := m.Transport.CreateTopic(name)
		if err != nil {
			return err
		}
		topicID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	topic, created, err := m.Topics.CreateTopicIfAbsent(&database.Topic{
		TopicID:   topicID,
		TopicName: name,
		IsSystem:  true,
		SystemKey: name,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		if derr := m.Transport.DeleteTopic(topicID); derr != nil {
			log.Printf("⚠️ Не удалось удалить дубликат системного топика %d: %v", topicID, derr)
		}
	}
	return topic, nil
}

// recreateSystemTopic удаляет устаревшую запись системного топика и создает
// топик заново. Вызывается не более одного раза на операцию.
func (m *Manager) recreateSystemTopic(stale *database.Topic) (*database.Topic, error) {
	log.Printf("⚠️ Системный топик %d (%s) удален на платформе, пересоздание", stale.TopicID, stale.SystemKey)
	if err := m.Topics.DeleteTopic(stale.TopicID); err != nil {
		return nil, err
	}
	return m.systemTopic(stale.SystemKey)
}
