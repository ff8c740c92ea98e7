package messages

import (
	"context"

	"github.com/samber/lo"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/metrics"
)

// AddReaction puts username into the set for key. Adding twice is a no-op
// that neither persists nor notifies.
func (s *Store) AddReaction(ctx context.Context, id, username, key string) (Message, error) {
	if !KnownReaction(key) {
		return Message{}, apperr.ErrInvalidReaction
	}
	return s.toggle(ctx, id, func(m *Message) bool {
		if lo.Contains(m.Reactions[key], username) {
			return false
		}
		m.Reactions[key] = append(m.Reactions[key], username)
		return true
	}, metrics.OpAdd)
}

// RemoveReaction takes username out of the set for key and drops the key
// once its set is empty. Removing an absent reaction, or one under an
// unknown key, returns the message unchanged.
func (s *Store) RemoveReaction(ctx context.Context, id, username, key string) (Message, error) {
	return s.toggle(ctx, id, func(m *Message) bool {
		users, ok := m.Reactions[key]
		if !ok {
			return false
		}
		if !lo.Contains(users, username) {
			return false
		}
		users = lo.Without(users, username)
		if len(users) == 0 {
			delete(m.Reactions, key)
		} else {
			m.Reactions[key] = users
		}
		return true
	}, metrics.OpRemove)
}

// toggle applies change to a private copy under the message's writer lock
// and commits it only when change reports a difference.
func (s *Store) toggle(ctx context.Context, id string, change func(*Message) bool, op string) (Message, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Message{}, apperr.ErrNoSuchID
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.load().clone()
	if !change(&next) {
		return next, nil
	}
	if err := s.persist(ctx, next); err != nil {
		return Message{}, err
	}
	e.snap.Store(&next)
	metrics.Reactions.WithLabelValues(op).Inc()

	if s.observer != nil {
		s.observer.Reacted(next.clone())
	}
	return next.clone(), nil
}
