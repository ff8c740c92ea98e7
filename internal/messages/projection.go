package messages

import (
	"sort"

	"github.com/samber/lo"

	"github.com/pelusa-v/threadchat/internal/apperr"
)

type Order int

const (
	NewestFirst Order = iota
	OldestFirst
)

// ParseOrder maps the "order" query value; anything but "asc" is newest first.
func ParseOrder(s string) Order {
	if s == "asc" {
		return OldestFirst
	}
	return NewestFirst
}

// ListRoots returns the roots of channelID with their reply counts.
func (s *Store) ListRoots(channelID string, order Order) []Root {
	s.idx.RLock()
	roots := lo.FilterMap(s.roots[channelID], func(id string, _ int) (Root, bool) {
		e, ok := s.byID[id]
		if !ok {
			return Root{}, false
		}
		return Root{Message: e.load().clone(), ReplyCount: len(s.threads[id]) - 1}, true
	})
	s.idx.RUnlock()

	sort.Slice(roots, func(i, j int) bool {
		if order == OldestFirst {
			return before(roots[i].Message, roots[j].Message)
		}
		return before(roots[j].Message, roots[i].Message)
	})
	return roots
}

// ListThread returns the root followed by its replies in creation order,
// or an empty slice when threadID is not a root.
func (s *Store) ListThread(threadID string) []Message {
	s.idx.RLock()
	ids := s.threads[threadID]
	all := lo.FilterMap(ids, func(id string, _ int) (Message, bool) {
		e, ok := s.byID[id]
		if !ok {
			return Message{}, false
		}
		return e.load().clone(), true
	})
	s.idx.RUnlock()

	if len(all) == 0 || !all[0].IsRoot() {
		return []Message{}
	}
	replies := all[1:]
	sort.SliceStable(replies, func(i, j int) bool { return before(replies[i], replies[j]) })
	return all
}

// Root returns threadID's root with its current reply count.
func (s *Store) Root(threadID string) (Root, error) {
	s.idx.RLock()
	defer s.idx.RUnlock()
	e, ok := s.byID[threadID]
	if !ok {
		return Root{}, apperr.ErrNoSuchThread
	}
	m := e.load()
	if !m.IsRoot() {
		return Root{}, apperr.ErrNoSuchThread
	}
	return Root{Message: m.clone(), ReplyCount: len(s.threads[threadID]) - 1}, nil
}
