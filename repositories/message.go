package repositories

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"chat-gateway/contract"
	"chat-gateway/domain"
)

// MessageStore holds the bounded chat transcript. The durable backend
// enforces the cap itself; the in-process fallback trims on append.
type MessageStore struct {
	log         *slog.Logger
	backend     contract.IBackend
	maxMessages int

	mu       sync.Mutex
	fallback []domain.MessageRecord
}

func NewMessageStore(backend contract.IBackend, maxMessages int, log *slog.Logger) *MessageStore {
	return &MessageStore{
		log:         log,
		backend:     backend,
		maxMessages: maxMessages,
	}
}

func (m *MessageStore) Append(ctx context.Context, record domain.MessageRecord) error {
	if m.backend.Connected() {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		err = m.backend.Transcript().Append(ctx, data)
		if err == nil {
			return nil
		}
		m.log.Warn("Transcript backend append failed, using fallback", "id", record.ID, "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = append(m.fallback, record)
	if len(m.fallback) > m.maxMessages {
		m.fallback = m.fallback[len(m.fallback)-m.maxMessages:]
	}
	return nil
}

// GetRange returns the limit newest records after skipping the offset
// newest ones, oldest-first within the page.
func (m *MessageStore) GetRange(ctx context.Context, limit, offset int) ([]domain.MessageRecord, error) {
	if limit <= 0 || offset < 0 {
		return []domain.MessageRecord{}, nil
	}

	if m.backend.Connected() {
		entries, err := m.backend.Transcript().Range(ctx, limit, offset)
		if err != nil {
			m.log.Warn("Transcript backend read failed, using fallback", "error", err)
		} else {
			records := make([]domain.MessageRecord, 0, len(entries))
			for _, data := range entries {
				var record domain.MessageRecord
				if err := json.Unmarshal(data, &record); err != nil {
					m.log.Warn("Dropping undecodable transcript entry", "error", err)
					continue
				}
				records = append(records, record)
			}
			return records, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	end := len(m.fallback) - offset
	if end <= 0 {
		return []domain.MessageRecord{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	page := make([]domain.MessageRecord, end-start)
	copy(page, m.fallback[start:end])
	return page, nil
}

// GetByUsername filters the retained transcript for one author and
// keeps the limit newest matches, oldest-first.
func (m *MessageStore) GetByUsername(ctx context.Context, username string, limit int) ([]domain.MessageRecord, error) {
	all, err := m.GetRange(ctx, m.maxMessages, 0)
	if err != nil {
		return nil, err
	}
	matched := lo.Filter(all, func(r domain.MessageRecord, _ int) bool {
		return r.Username == username
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (m *MessageStore) Count(ctx context.Context) (int, error) {
	if m.backend.Connected() {
		n, err := m.backend.Transcript().Len(ctx)
		if err != nil {
			m.log.Warn("Transcript backend count failed, using fallback", "error", err)
		} else {
			return n, nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.fallback), nil
}

// Clear empties the transcript everywhere. Presence is untouched.
// A failed durable clear is logged, not surfaced; the fallback list is
// emptied regardless.
func (m *MessageStore) Clear(ctx context.Context) error {
	if m.backend.Connected() {
		if err := m.backend.Transcript().Clear(ctx); err != nil {
			m.log.Warn("Transcript backend clear failed", "error", err)
		}
	}

	m.mu.Lock()
	m.fallback = nil
	m.mu.Unlock()
	return nil
}
