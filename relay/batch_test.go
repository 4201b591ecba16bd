// relay/batch_test.go
package relay

import (
	"errors"
	"testing"
)

func albumPart(msgID int64, caption string) InboundMessage {
	return InboundMessage{
		ChatID:       555,
		MessageID:    msgID,
		MediaGroupID: "g1",
		Caption:      caption,
	}
}

func TestAlbumPartsBatchedIntoSingleJob(t *testing.T) {
	m, store, tr, sched := newTestManager()
	info := testUser()

	for _, id := range []int64{3, 1, 2} {
		if err := m.OnUserMessage(info, albumPart(id, ""), privateSource()); err != nil {
			t.Fatalf("часть %d: %v", id, err)
		}
	}

	if sched.jobCount() != 1 {
		t.Fatalf("взведено %d задач, ожидалась 1", sched.jobCount())
	}

	name := mediaGroupJobName("g1", 555, m.AdminGroupID, dirUserToAdmin)
	if !sched.fire(name) {
		t.Fatal("задача не найдена по имени")
	}

	// Один вызов пересылки со всеми частями в порядке возрастания
	tr.mu.Lock()
	batches := len(tr.batches)
	var ids []int64
	if batches > 0 {
		ids = tr.batches[0].MessageIDs
	}
	tr.mu.Unlock()
	if batches != 1 {
		t.Fatalf("вызовов пересылки: %d, ожидался 1", batches)
	}
	want := []int64{1, 2, 3}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("нарушен порядок частей: %v", ids)
		}
	}

	// Один сигнал на весь альбом, все части помечены непрочитанными
	if got := alertsInSystemTopic(m, store, tr); got != 1 {
		t.Fatalf("сигналов: %d, ожидался 1", got)
	}
	if got := store.unreadCount(info.ID); got != 3 {
		t.Fatalf("непрочитанных строк: %d, ожидалось 3", got)
	}

	// Буфер частей очищен
	parts, _ := store.MediaGroupParts("g1", 555)
	if len(parts) != 0 {
		t.Fatalf("после отправки осталось %d частей", len(parts))
	}
}

func TestDistinctAlbumsScheduledSeparately(t *testing.T) {
	m, _, _, sched := newTestManager()
	info := testUser()

	a := albumPart(1, "")
	b := albumPart(2, "")
	b.MediaGroupID = "g2"

	if err := m.OnUserMessage(info, a, privateSource()); err != nil {
		t.Fatalf("альбом g1: %v", err)
	}
	if err := m.OnUserMessage(info, b, privateSource()); err != nil {
		t.Fatalf("альбом g2: %v", err)
	}
	if sched.jobCount() != 2 {
		t.Fatalf("взведено %d задач, ожидалось 2", sched.jobCount())
	}
}

func TestAlbumCaptionStoredCompressed(t *testing.T) {
	m, store, _, _ := newTestManager()
	info := testUser()

	caption := "продаю гараж, подробности внутри"
	if err := m.OnUserMessage(info, albumPart(1, caption), privateSource()); err != nil {
		t.Fatalf("часть с подписью: %v", err)
	}

	parts, _ := store.MediaGroupParts("g1", 555)
	if len(parts) != 1 {
		t.Fatalf("частей: %d", len(parts))
	}
	if string(parts[0].Caption) == caption {
		t.Fatal("подпись сохранена без сжатия")
	}
	if got := firstCaption(parts); got != caption {
		t.Fatalf("подпись не восстановилась: %q", got)
	}
}

func TestDegradedModeRelaysImmediately(t *testing.T) {
	m, store, tr, sched := newTestManager()
	sched.available = false
	info := testUser()

	for _, id := range []int64{1, 2} {
		if err := m.OnUserMessage(info, albumPart(id, ""), privateSource()); err != nil {
			t.Fatalf("часть %d: %v", id, err)
		}
	}

	// Без планировщика части уходят сразу и поодиночке
	if sched.jobCount() != 0 {
		t.Fatal("в деградированном режиме задачи не взводятся")
	}
	tr.mu.Lock()
	singles := len(tr.copies)
	tr.mu.Unlock()
	if singles != 2 {
		t.Fatalf("отдельных пересылок: %d, ожидалось 2", singles)
	}
	if got := store.unreadCount(info.ID); got != 2 {
		t.Fatalf("непрочитанных строк: %d, ожидалось 2", got)
	}
}

func TestAlbumFlushRecreatesStaleTopic(t *testing.T) {
	m, store, tr, sched := newTestManager()
	info := testUser()

	if err := m.OnUserMessage(info, albumPart(1, ""), privateSource()); err != nil {
		t.Fatalf("часть альбома: %v", err)
	}

	first, _ := store.FindTopic(info.ID, false, 0)
	tr.failNext("CopyMessages", NewTransportError(KindStaleResource, "copyMessages", errors.New("message thread not found")))

	name := mediaGroupJobName("g1", 555, m.AdminGroupID, dirUserToAdmin)
	if !sched.fire(name) {
		t.Fatal("задача не найдена")
	}

	second, _ := store.FindTopic(info.ID, false, 0)
	if second == nil || second.TopicID == first.TopicID {
		t.Fatal("устаревший топик не пересоздан")
	}

	tr.mu.Lock()
	batches := len(tr.batches)
	tr.mu.Unlock()
	if batches != 1 {
		t.Fatalf("альбом должен дойти со второй попытки, пересылок: %d", batches)
	}
}

func TestOperatorAlbumFlushClearsUnread(t *testing.T) {
	m, store, tr, sched := newTestManager()
	info := testUser()

	// Пользователь пишет, появляется непрочитанное
	if err := m.OnUserMessage(info, userMsg(1), privateSource()); err != nil {
		t.Fatalf("сообщение пользователя: %v", err)
	}
	topic, _ := store.FindTopic(info.ID, false, 0)

	operator := UserInfo{ID: 777, FirstName: "Оператор"}
	part := InboundMessage{ChatID: m.AdminGroupID, MessageID: 50, MediaGroupID: "op1"}
	if err := m.OnOperatorThreadMessage(topic.TopicID, operator, part); err != nil {
		t.Fatalf("часть альбома оператора: %v", err)
	}

	name := mediaGroupJobName("op1", m.AdminGroupID, info.ID, dirAdminToUser)
	if !sched.fire(name) {
		t.Fatal("задача не найдена")
	}

	tr.mu.Lock()
	batches := len(tr.batches)
	var dest int64
	if batches > 0 {
		dest = tr.batches[0].ToChatID
	}
	tr.mu.Unlock()
	if batches != 1 || dest != info.ID {
		t.Fatalf("альбом не доставлен пользователю: batches=%d dest=%d", batches, dest)
	}
	if got := store.unreadCount(info.ID); got != 0 {
		t.Fatalf("ответ оператора должен снять непрочитанность, осталось %d", got)
	}
}
