package messages

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/docstore"
	"github.com/pelusa-v/threadchat/internal/metrics"
)

type ChannelLookup interface {
	Exists(id string) bool
}

// Observer receives every committed mutation. It is called while the
// message's writer lock is held, so calls for one message arrive in commit
// order. Implementations must not block and must not call back into the
// Store.
type Observer interface {
	// Created reports a new message. thread is set when m is a reply and
	// carries the root with its updated reply count.
	Created(m Message, thread *Root)
	Updated(m Message)
	Reacted(m Message)
}

type AddOptions struct {
	ChannelID string
	ThreadID  string
	ParentID  string
	// ForwardOf is the id of the message being forwarded.
	ForwardOf string
}

type ForwardOptions struct {
	ChannelID string
	ThreadID  string
}

// entry holds one message. mu serializes writers; readers load snap.
type entry struct {
	mu   sync.Mutex
	snap atomic.Pointer[Message]
}

func (e *entry) load() Message { return *e.snap.Load() }

// Store owns all messages. Lock order: an entry's mu before idx; idx is
// never held while waiting on an entry.
type Store struct {
	idx     sync.RWMutex
	byID    map[string]*entry
	threads map[string][]string // thread id -> ids, root first
	roots   map[string][]string // channel id -> root ids

	docs     docstore.Store
	channels ChannelLookup
	observer Observer
	log      *slog.Logger

	now   func() time.Time
	newID func() (string, error)
}

func NewStore(docs docstore.Store, channels ChannelLookup, logger *slog.Logger) *Store {
	return &Store{
		byID:     map[string]*entry{},
		threads:  map[string][]string{},
		roots:    map[string][]string{},
		docs:     docs,
		channels: channels,
		log:      logger,
		now:      time.Now,
		newID: func() (string, error) {
			id, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return id.String(), nil
		},
	}
}

// SetObserver must be called before the store serves requests.
func (s *Store) SetObserver(o Observer) {
	s.observer = o
}

func (s *Store) lookup(id string) (*entry, bool) {
	s.idx.RLock()
	defer s.idx.RUnlock()
	e, ok := s.byID[id]
	return e, ok
}

func (s *Store) Get(id string) (Message, error) {
	e, ok := s.lookup(id)
	if !ok {
		return Message{}, apperr.ErrNoSuchMessage
	}
	return e.load().clone(), nil
}

// Add creates a root message, or a reply when opts.ThreadID is set.
func (s *Store) Add(ctx context.Context, author, text string, opts AddOptions) (Message, error) {
	var original *Original
	if opts.ForwardOf != "" {
		orig, ok := s.lookup(opts.ForwardOf)
		if !ok {
			return Message{}, apperr.ErrNoSuchMessage
		}
		// snapshot under the writer lock so it never observes a half applied edit
		orig.mu.Lock()
		o := orig.load()
		orig.mu.Unlock()
		original = &Original{ID: o.ID, Username: o.Username, Text: o.Text}
		if strings.TrimSpace(text) == "" {
			text = ForwardPlaceholder
		}
	} else if strings.TrimSpace(text) == "" {
		return Message{}, apperr.ErrRequiredMessage
	}

	id, err := s.newID()
	if err != nil {
		return Message{}, apperr.Internal(fmt.Errorf("message id: %w", err))
	}
	m := Message{
		ID:              id,
		Username:        author,
		Text:            text,
		Timestamp:       s.now().UTC(),
		Reactions:       map[string][]string{},
		IsForwarded:     original != nil,
		OriginalMessage: original,
	}

	kind := metrics.KindRoot
	if opts.ThreadID != "" {
		kind = metrics.KindReply
	}
	if original != nil {
		kind = metrics.KindForward
	}

	if opts.ThreadID == "" {
		m, err = s.addRoot(ctx, m, opts.ChannelID)
	} else {
		m, err = s.addReply(ctx, m, opts.ThreadID, opts.ParentID)
	}
	if err != nil {
		return Message{}, err
	}
	metrics.MessagesCreated.WithLabelValues(kind).Inc()
	return m, nil
}

func (s *Store) addRoot(ctx context.Context, m Message, channelID string) (Message, error) {
	if channelID == "" {
		channelID = DefaultChannel
	}
	if s.channels != nil && !s.channels.Exists(channelID) {
		return Message{}, apperr.ErrNoSuchChannel
	}
	m.ChannelID = channelID
	m.ThreadID = m.ID

	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap.Store(&m)

	if err := s.persist(ctx, m); err != nil {
		return Message{}, err
	}

	s.idx.Lock()
	s.byID[m.ID] = e
	s.threads[m.ID] = []string{m.ID}
	s.roots[channelID] = append(s.roots[channelID], m.ID)
	s.idx.Unlock()

	s.log.Debug("message_created", "id", m.ID, "channel", channelID, "by", m.Username)
	if s.observer != nil {
		s.observer.Created(m.clone(), nil)
	}
	return m.clone(), nil
}

func (s *Store) addReply(ctx context.Context, m Message, threadID, parentID string) (Message, error) {
	root, ok := s.lookup(threadID)
	if !ok {
		return Message{}, apperr.ErrNoSuchThread
	}

	// the root lock orders reply-created and thread-updated per thread
	root.mu.Lock()
	defer root.mu.Unlock()

	r := root.load()
	if !r.IsRoot() {
		return Message{}, apperr.ErrNoSuchThread
	}
	if parentID == "" {
		parentID = threadID
	}
	if parentID != threadID && !s.inThread(parentID, threadID) {
		return Message{}, apperr.ErrInvalidParent
	}

	m.ChannelID = r.ChannelID
	m.ThreadID = threadID
	m.ParentID = &parentID

	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snap.Store(&m)

	if err := s.persist(ctx, m); err != nil {
		return Message{}, err
	}

	s.idx.Lock()
	s.byID[m.ID] = e
	s.threads[threadID] = append(s.threads[threadID], m.ID)
	count := len(s.threads[threadID]) - 1
	s.idx.Unlock()

	s.log.Debug("reply_created", "id", m.ID, "thread", threadID, "by", m.Username)
	if s.observer != nil {
		s.observer.Created(m.clone(), &Root{Message: r.clone(), ReplyCount: count})
	}
	return m.clone(), nil
}

func (s *Store) inThread(id, threadID string) bool {
	e, ok := s.lookup(id)
	if !ok {
		return false
	}
	return e.load().ThreadID == threadID
}

// Update replaces the text of a message authored by requestingUser.
func (s *Store) Update(ctx context.Context, id, requestingUser, text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, apperr.ErrRequiredMessage
	}
	e, ok := s.lookup(id)
	if !ok {
		return Message{}, apperr.ErrNoSuchMessage
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.load()
	if cur.Username != requestingUser {
		return Message{}, apperr.ErrNotAuthorized
	}

	next := cur.clone()
	next.Text = text
	next.Edited = true
	if err := s.persist(ctx, next); err != nil {
		return Message{}, err
	}
	e.snap.Store(&next)
	metrics.MessagesEdited.Inc()

	if s.observer != nil {
		s.observer.Updated(next.clone())
	}
	return next.clone(), nil
}

// Forward creates a new message by requestingUser carrying a frozen copy of
// the original. With opts.ThreadID it is filed as a reply in that thread,
// otherwise as a root in opts.ChannelID or, when empty, DefaultChannel.
func (s *Store) Forward(ctx context.Context, requestingUser, originalID, comment string, opts ForwardOptions) (Message, error) {
	return s.Add(ctx, requestingUser, comment, AddOptions{
		ChannelID: opts.ChannelID,
		ThreadID:  opts.ThreadID,
		ForwardOf: originalID,
	})
}

// Load rebuilds the in-memory indexes from the docstore. It must run before
// the store serves requests.
func (s *Store) Load(ctx context.Context) error {
	recs, err := docstore.ScanJSON[messageRecord](ctx, s.docs, docstore.Messages)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	all := make([]Message, 0, len(recs))
	for _, r := range recs {
		all = append(all, fromRecord(r))
	}
	sort.Slice(all, func(i, j int) bool { return before(all[i], all[j]) })

	s.idx.Lock()
	defer s.idx.Unlock()

	for i := range all {
		m := all[i]
		if m.IsRoot() {
			e := &entry{}
			e.snap.Store(&m)
			s.byID[m.ID] = e
			s.threads[m.ID] = []string{m.ID}
			s.roots[m.ChannelID] = append(s.roots[m.ChannelID], m.ID)
		}
	}
	skipped := 0
	for i := range all {
		m := all[i]
		if m.IsRoot() {
			continue
		}
		if _, ok := s.threads[m.ThreadID]; !ok {
			skipped++
			s.log.Warn("orphan_reply_skipped", "id", m.ID, "thread", m.ThreadID)
			continue
		}
		e := &entry{}
		e.snap.Store(&m)
		s.byID[m.ID] = e
		s.threads[m.ThreadID] = append(s.threads[m.ThreadID], m.ID)
	}
	s.log.Info("messages_loaded", "count", len(s.byID), "skipped", skipped)
	return nil
}
