// Package repositories implements the dual-backend stores: every
// store writes to the durable backend when it is reachable and falls
// back to an in-process structure for the single call that failed.
// The fallback is per call, never a sticky mode switch; connectivity
// is tracked by the backend adapter alone.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"chat-gateway/contract"
	"chat-gateway/domain"
	apperrors "chat-gateway/errors"
)

// PresenceStore holds the set of online users. Username uniqueness is
// enforced by an atomic conditional insert at the durable backend and
// by a mutex-guarded check at the in-process fallback.
type PresenceStore struct {
	log     *slog.Logger
	backend contract.IBackend

	mu       sync.Mutex
	fallback map[string]domain.UserRecord
}

func NewPresenceStore(backend contract.IBackend, log *slog.Logger) *PresenceStore {
	return &PresenceStore{
		log:      log,
		backend:  backend,
		fallback: make(map[string]domain.UserRecord),
	}
}

func (p *PresenceStore) AddUser(ctx context.Context, username string, sessionID domain.SessionID) error {
	record := domain.UserRecord{
		Username:  username,
		SessionID: sessionID,
		JoinedAt:  time.Now().UTC(),
	}

	if p.backend.Connected() {
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		err = p.backend.Presence().Create(ctx, username, value)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, apperrors.ErrKeyExists):
			return apperrors.ErrUsernameTaken
		default:
			p.log.Warn("Presence backend write failed, using fallback", "username", username, "error", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.fallback[username]; taken {
		return apperrors.ErrUsernameTaken
	}
	p.fallback[username] = record
	return nil
}

// RemoveUser drops the username everywhere it may live. Removing an
// unknown username is a no-op. A failed durable delete is logged, not
// surfaced: the fallback removal already took effect and the durable
// entry is at worst a temporary consistency gap.
func (p *PresenceStore) RemoveUser(ctx context.Context, username string) error {
	if p.backend.Connected() {
		if err := p.backend.Presence().Delete(ctx, username); err != nil {
			p.log.Warn("Presence backend delete failed", "username", username, "error", err)
		}
	}

	p.mu.Lock()
	delete(p.fallback, username)
	p.mu.Unlock()
	return nil
}

// ListUsers merges the durable set with fallback entries that have not
// been resynced yet.
func (p *PresenceStore) ListUsers(ctx context.Context) ([]string, error) {
	var durable []string
	if p.backend.Connected() {
		keys, err := p.backend.Presence().Keys(ctx)
		if err != nil {
			p.log.Warn("Presence backend read failed, using fallback", "error", err)
		} else {
			durable = keys
		}
	}

	p.mu.Lock()
	local := lo.Keys(p.fallback)
	p.mu.Unlock()

	return lo.Uniq(append(durable, local...)), nil
}

func (p *PresenceStore) Count(ctx context.Context) (int, error) {
	users, err := p.ListUsers(ctx)
	if err != nil {
		return 0, err
	}
	return len(users), nil
}

// Resync pushes fallback entries back to the durable backend after a
// reconnect. An entry leaves the fallback once the backend owns it,
// including when another gateway claimed the username meanwhile.
func (p *PresenceStore) Resync(ctx context.Context) {
	if !p.backend.Connected() {
		return
	}

	p.mu.Lock()
	pending := lo.Values(p.fallback)
	p.mu.Unlock()

	for _, record := range pending {
		value, err := json.Marshal(record)
		if err != nil {
			continue
		}
		err = p.backend.Presence().Create(ctx, record.Username, value)
		if err != nil && !errors.Is(err, apperrors.ErrKeyExists) {
			p.log.Warn("Presence resync failed", "username", record.Username, "error", err)
			continue
		}
		p.mu.Lock()
		delete(p.fallback, record.Username)
		p.mu.Unlock()
	}
}
