// relay/fakes_test.go
package relay

import (
	"sync"
	"time"

	"github.com/LilVoxy/support_bridge/config"
	"github.com/LilVoxy/support_bridge/database"
)

// Подмены зависимостей движка для тестов: хранилище в памяти,
// транспорт с программируемыми сбоями, ручной планировщик.

type fakeStore struct {
	mu       sync.Mutex
	users    map[int64]*database.User
	topics   []*database.Topic
	messages []*database.MessageMap
	parts    []*database.MediaGroupPart
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[int64]*database.User)}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) GetOrCreateUser(telegramID int64, username, firstName, lastName, languageCode string, premium bool) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		u.Username = username
		u.FirstName = firstName
		u.LastName = lastName
		u.IsPremium = premium
		copied := *u
		return &copied, nil
	}
	u := &database.User{
		ID:           s.id(),
		TelegramID:   telegramID,
		Username:     username,
		FirstName:    firstName,
		LastName:     lastName,
		LanguageCode: languageCode,
		IsActive:     true,
		IsPremium:    premium,
	}
	s.users[telegramID] = u
	copied := *u
	return &copied, nil
}

func (s *fakeStore) UserByTelegramID(telegramID int64) (*database.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (s *fakeStore) SetUserBanned(telegramID int64, banned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[telegramID]
	if !ok {
		u = &database.User{ID: s.id(), TelegramID: telegramID}
		s.users[telegramID] = u
	}
	u.IsActive = !banned
	return nil
}

func (s *fakeStore) SetUserLastGroup(telegramID, groupID int64, groupName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[telegramID]; ok {
		u.LastGroupID = groupID
		u.LastGroupName = groupName
	}
	return nil
}

func (s *fakeStore) FindTopic(userID int64, fromGroup bool, sourceGroupID int64) (*database.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if !t.IsSystem && t.UserID == userID && t.FromGroup == fromGroup && t.SourceGroupID == sourceGroupID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) TopicByTopicID(topicID int64) (*database.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if t.TopicID == topicID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindSystemTopic(name string) (*database.Topic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if t.IsSystem && t.SystemKey == name {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateTopicIfAbsent(t *database.Topic) (*database.Topic, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.topics {
		if existing.IsSystem == t.IsSystem &&
			existing.UserID == t.UserID &&
			existing.FromGroup == t.FromGroup &&
			existing.SourceGroupID == t.SourceGroupID &&
			existing.SystemKey == t.SystemKey {
			copied := *existing
			return &copied, false, nil
		}
	}
	stored := *t
	stored.ID = s.id()
	stored.Status = database.TopicStatusOpened
	s.topics = append(s.topics, &stored)
	copied := stored
	return &copied, true, nil
}

func (s *fakeStore) UpdateTopicName(topicID int64, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if t.TopicID == topicID {
			t.TopicName = name
		}
	}
	return nil
}

func (s *fakeStore) SetTopicStatus(topicID int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.topics {
		if t.TopicID == topicID {
			t.Status = status
		}
	}
	return nil
}

func (s *fakeStore) DeleteTopic(topicID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.topics[:0]
	for _, t := range s.topics {
		if t.TopicID != topicID {
			kept = append(kept, t)
		}
	}
	s.topics = kept
	return nil
}

func (s *fakeStore) RecordMessageMap(m *database.MessageMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.id()
	stored := *m
	s.messages = append(s.messages, &stored)
	return nil
}

func (s *fakeStore) MessageMapByOrigin(userMsgID, userTelegramID int64) (*database.MessageMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.UserChatMessageID == userMsgID && m.UserTelegramID == userTelegramID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) MessageMapByMirror(groupMsgID int64) (*database.MessageMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.GroupChatMessageID == groupMsgID {
			copied := *m
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) SetMessageUnread(id, alertMsgID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.ID == id {
			m.IsUnread = true
			m.UnreadTopicMessageID = alertMsgID
		}
	}
	return nil
}

func (s *fakeStore) HasUnread(userTelegramID int64, fromGroup bool, sourceGroupID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.UserTelegramID == userTelegramID && m.IsUnread && m.FromGroup == fromGroup && m.SourceGroupID == sourceGroupID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) UnreadFor(userTelegramID int64, fromGroup bool, sourceGroupID int64) ([]database.MessageMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []database.MessageMap
	for _, m := range s.messages {
		if m.UserTelegramID == userTelegramID && m.IsUnread && m.FromGroup == fromGroup && m.SourceGroupID == sourceGroupID {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (s *fakeStore) UnreadAll(userTelegramID int64) ([]database.MessageMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []database.MessageMap
	for _, m := range s.messages {
		if m.UserTelegramID == userTelegramID && m.IsUnread {
			result = append(result, *m)
		}
	}
	return result, nil
}

func (s *fakeStore) MarkMessagesHandled(ids []int64, handlerID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		for _, m := range s.messages {
			if m.ID == id {
				m.IsUnread = false
				m.HandledBy = handlerID
			}
		}
	}
	return nil
}

func (s *fakeStore) AddMediaGroupPart(p *database.MediaGroupPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.id()
	stored := *p
	s.parts = append(s.parts, &stored)
	return nil
}

func (s *fakeStore) MediaGroupParts(mediaGroupID string, chatID int64) ([]database.MediaGroupPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []database.MediaGroupPart
	for _, p := range s.parts {
		if p.MediaGroupID == mediaGroupID && p.ChatID == chatID {
			result = append(result, *p)
		}
	}
	// Части возвращаются в порядке ID сообщений
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].MessageID < result[j-1].MessageID; j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result, nil
}

func (s *fakeStore) DeleteMediaGroupParts(mediaGroupID string, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.parts[:0]
	for _, p := range s.parts {
		if p.MediaGroupID != mediaGroupID || p.ChatID != chatID {
			kept = append(kept, p)
		}
	}
	s.parts = kept
	return nil
}

// unreadCount считает непрочитанные строки пользователя
func (s *fakeStore) unreadCount(userTelegramID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.UserTelegramID == userTelegramID && m.IsUnread {
			n++
		}
	}
	return n
}

type sentMessage struct {
	ChatID  int64
	TopicID int64
	ReplyTo int64
	Text    string
	Actions []Action
	ID      int64
}

type copyCall struct {
	FromChatID int64
	MessageID  int64
	ToChatID   int64
	TopicID    int64
	ReplyTo    int64
	Mirror     int64
}

type copyBatch struct {
	FromChatID int64
	MessageIDs []int64
	ToChatID   int64
	TopicID    int64
	Mirrors    []int64
}

type fakeTransport struct {
	mu            sync.Mutex
	nextTopicID   int64
	nextMessageID int64

	createdTopics   []string
	deletedTopics   []int64
	sent            []sentMessage
	copies          []copyCall
	batches         []copyBatch
	deletedMessages []int64

	// Очереди запланированных ошибок по имени метода
	failures map[string][]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		nextTopicID:   100,
		nextMessageID: 1000,
		failures:      make(map[string][]error),
	}
}

// failNext ставит ошибку в очередь: ближайший вызов метода ее вернет
func (t *fakeTransport) failNext(method string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[method] = append(t.failures[method], err)
}

func (t *fakeTransport) popFailure(method string) error {
	queue := t.failures[method]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	t.failures[method] = queue[1:]
	return err
}

func (t *fakeTransport) CreateTopic(name string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("CreateTopic"); err != nil {
		return 0, err
	}
	t.nextTopicID++
	t.createdTopics = append(t.createdTopics, name)
	return t.nextTopicID, nil
}

func (t *fakeTransport) EditTopicName(topicID int64, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.popFailure("EditTopicName")
}

func (t *fakeTransport) DeleteTopic(topicID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("DeleteTopic"); err != nil {
		return err
	}
	t.deletedTopics = append(t.deletedTopics, topicID)
	return nil
}

func (t *fakeTransport) SendMessage(chatID, topicID, replyToID int64, text string, actions []Action) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("SendMessage"); err != nil {
		return 0, err
	}
	t.nextMessageID++
	t.sent = append(t.sent, sentMessage{
		ChatID: chatID, TopicID: topicID, ReplyTo: replyToID,
		Text: text, Actions: actions, ID: t.nextMessageID,
	})
	return t.nextMessageID, nil
}

func (t *fakeTransport) CopyMessage(fromChatID, messageID, toChatID, topicID, replyToID int64) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("CopyMessage"); err != nil {
		return 0, err
	}
	t.nextMessageID++
	t.copies = append(t.copies, copyCall{
		FromChatID: fromChatID, MessageID: messageID,
		ToChatID: toChatID, TopicID: topicID, ReplyTo: replyToID,
		Mirror: t.nextMessageID,
	})
	return t.nextMessageID, nil
}

func (t *fakeTransport) CopyMessages(fromChatID int64, messageIDs []int64, toChatID, topicID int64) ([]int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("CopyMessages"); err != nil {
		return nil, err
	}
	mirrors := make([]int64, 0, len(messageIDs))
	for range messageIDs {
		t.nextMessageID++
		mirrors = append(mirrors, t.nextMessageID)
	}
	t.batches = append(t.batches, copyBatch{
		FromChatID: fromChatID, MessageIDs: append([]int64(nil), messageIDs...),
		ToChatID: toChatID, TopicID: topicID, Mirrors: mirrors,
	})
	return mirrors, nil
}

func (t *fakeTransport) DeleteMessage(chatID, messageID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.popFailure("DeleteMessage"); err != nil {
		return err
	}
	t.deletedMessages = append(t.deletedMessages, messageID)
	return nil
}

type fakeScheduler struct {
	mu        sync.Mutex
	available bool
	jobs      map[string]func()
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{available: true, jobs: make(map[string]func())}
}

func (s *fakeScheduler) ScheduleOnce(name string, delay time.Duration, task func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[name]; ok {
		return nil
	}
	s.jobs[name] = task
	return nil
}

func (s *fakeScheduler) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

func (s *fakeScheduler) Cancel(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, name)
	return nil
}

func (s *fakeScheduler) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available
}

// fire выполняет взведенную задачу, имитируя срабатывание окна
func (s *fakeScheduler) fire(name string) bool {
	s.mu.Lock()
	task, ok := s.jobs[name]
	delete(s.jobs, name)
	s.mu.Unlock()
	if ok {
		task()
	}
	return ok
}

func (s *fakeScheduler) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

const testAdminGroupID = -1001234567890

func newTestManager() (*Manager, *fakeStore, *fakeTransport, *fakeScheduler) {
	store := newFakeStore()
	tr := newFakeTransport()
	sched := newFakeScheduler()
	m := &Manager{
		Users:        store,
		Topics:       store,
		Messages:     store,
		MediaGroups:  store,
		Transport:    tr,
		Scheduler:    sched,
		AdminGroupID: testAdminGroupID,
		AdminUserIDs: []int64{777},
		BotID:        42,
		BotUsername:  "support_bridge_bot",
		Retry: config.RetryConfig{
			MaxRetries:  3,
			InitialWait: 1 * time.Second,
			MaxWait:     60 * time.Second,
		},
		MediaGroupDelay: 5 * time.Second,
		sleep:           func(time.Duration) {},
	}
	return m, store, tr, sched
}

func testUser() UserInfo {
	return UserInfo{ID: 555, Username: "ivan", FirstName: "Иван", LastName: "Петров"}
}

func privateSource() SourceChannel {
	return SourceChannel{}
}

func groupSource() SourceChannel {
	return SourceChannel{FromGroup: true, GroupID: -100987, GroupName: "Барахолка"}
}
