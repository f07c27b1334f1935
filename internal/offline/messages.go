package offline

import (
	"sort"
	"strings"

	"housing_sync/internal/domain"
)

// Threads returns threads whose participant name or last message contains
// query (case-insensitive), most recent activity first.
func (s *Store) Threads(query string) []domain.MessageThread {
	q := strings.ToLower(strings.TrimSpace(query))
	s.mu.RLock()
	out := make([]domain.MessageThread, 0, len(s.threads))
	for _, t := range s.threads {
		if q == "" ||
			strings.Contains(strings.ToLower(t.ParticipantName), q) ||
			strings.Contains(strings.ToLower(t.LastMessage), q) {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageTime.After(out[j].LastMessageTime) })
	return out
}

func (s *Store) Thread(id string) (domain.MessageThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		if t.ID == id {
			return t, true
		}
	}
	return domain.MessageThread{}, false
}

// UpsertThread replaces the thread with the same ID or appends t.
// An empty ID gets a generated one.
func (s *Store) UpsertThread(t domain.MessageThread) (domain.MessageThread, error) {
	if t.ID == "" {
		t.ID = s.newID()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	next := append([]domain.MessageThread(nil), s.threads...)
	replaced := false
	for i := range next {
		if next[i].ID == t.ID {
			next[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, t)
	}
	if err := s.put(keyThreads, next); err != nil {
		return domain.MessageThread{}, err
	}
	s.threads = next
	return t, nil
}

// ThreadWith finds the thread with participantID about propertyTitle.
func (s *Store) ThreadWith(participantID, propertyTitle string) (domain.MessageThread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.threads {
		if t.ParticipantID == participantID && t.PropertyTitle == propertyTitle {
			return t, true
		}
	}
	return domain.MessageThread{}, false
}

// Messages returns a thread's messages oldest first.
func (s *Store) Messages(threadID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Message(nil), s.messages[threadID]...)
}

// AppendMessage stores m on its thread and moves the thread's preview
// forward. Unknown threads are rejected with domain.ErrNotFound. Messages not
// sent by the local user count as unread.
func (s *Store) AppendMessage(m domain.Message, localUserID string) (domain.Message, error) {
	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		ve := domain.ValidationError{}
		ve.Add("content", "is required")
		return domain.Message{}, ve.OrNil()
	}
	if m.ID == "" {
		m.ID = s.newID()
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = s.now().UTC()
	}
	if m.Kind == "" {
		m.Kind = domain.MessageText
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, t := range s.threads {
		if t.ID == m.ThreadID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Message{}, domain.ErrNotFound
	}
	msgs := append(append([]domain.Message(nil), s.messages[m.ThreadID]...), m)
	if err := s.put(prefixMessages+m.ThreadID, msgs); err != nil {
		return domain.Message{}, err
	}
	threads := append([]domain.MessageThread(nil), s.threads...)
	threads[idx].LastMessage = m.Content
	threads[idx].LastMessageTime = m.Timestamp
	if m.SenderID != localUserID && !m.Read {
		threads[idx].UnreadCount++
	}
	if err := s.put(keyThreads, threads); err != nil {
		return domain.Message{}, err
	}
	s.messages[m.ThreadID] = msgs
	s.threads = threads
	return m, nil
}

// MarkThreadRead zeroes the unread counter and flags every message read.
func (s *Store) MarkThreadRead(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := -1
	for i, t := range s.threads {
		if t.ID == threadID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	msgs := append([]domain.Message(nil), s.messages[threadID]...)
	for i := range msgs {
		msgs[i].Read = true
	}
	if len(msgs) > 0 {
		if err := s.put(prefixMessages+threadID, msgs); err != nil {
			return err
		}
	}
	threads := append([]domain.MessageThread(nil), s.threads...)
	threads[idx].UnreadCount = 0
	if err := s.put(keyThreads, threads); err != nil {
		return err
	}
	s.messages[threadID] = msgs
	s.threads = threads
	return nil
}
