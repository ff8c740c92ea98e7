package messages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/docstore"
	"github.com/pelusa-v/threadchat/internal/logging"
)

type channelSet map[string]bool

func (c channelSet) Exists(id string) bool { return c[id] }

type event struct {
	kind   string
	msg    Message
	thread *Root
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Created(m Message, thread *Root) { r.add(event{"created", m, thread}) }
func (r *recorder) Updated(m Message)               { r.add(event{"updated", m, nil}) }
func (r *recorder) Reacted(m Message)               { r.add(event{"reacted", m, nil}) }

func (r *recorder) add(e event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

type failingDocs struct {
	docstore.Store
	fail bool
}

func (f *failingDocs) Put(ctx context.Context, c, id string, doc []byte) error {
	if f.fail {
		return errors.New("unreachable")
	}
	return f.Store.Put(ctx, c, id, doc)
}

func newTestStore(t *testing.T, docs docstore.Store) (*Store, *recorder) {
	t.Helper()
	s := NewStore(docs, channelSet{"public": true, "introduction": true}, logging.Discard())
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}
	rec := &recorder{}
	s.SetObserver(rec)
	return s, rec
}

func TestAliceScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, docstore.NewMemory())

	root, err := s.Add(ctx, "alice", "hello", AddOptions{ChannelID: "public"})
	require.NoError(t, err)
	assert.Equal(t, "public", root.ChannelID)
	assert.Equal(t, root.ID, root.ThreadID)
	assert.Nil(t, root.ParentID)
	assert.True(t, root.IsRoot())

	roots := s.ListRoots("public", NewestFirst)
	require.Len(t, roots, 1)
	assert.Equal(t, 0, roots[0].ReplyCount)

	reply, err := s.Add(ctx, "alice", "hi back", AddOptions{ThreadID: root.ID})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)
	assert.Equal(t, root.ID, *reply.ParentID)
	assert.Equal(t, "public", reply.ChannelID)

	thread := s.ListThread(root.ID)
	require.Len(t, thread, 2)
	assert.Equal(t, root.ID, thread[0].ID)
	assert.Equal(t, "alice", thread[1].Username)
	assert.Equal(t, "hi back", thread[1].Text)

	_, err = s.AddReaction(ctx, root.ID, "alice", "smile")
	require.NoError(t, err)
	roots = s.ListRoots("public", NewestFirst)
	require.Len(t, roots, 1)
	assert.Equal(t, []string{"alice"}, roots[0].Reactions["smile"])
	assert.Equal(t, 1, roots[0].ReplyCount)

	after, err := s.RemoveReaction(ctx, root.ID, "alice", "smile")
	require.NoError(t, err)
	assert.NotContains(t, after.Reactions, "smile")
}

func TestReplyCountMatchesThread(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, docstore.NewMemory())

	a, err := s.Add(ctx, "alice", "a", AddOptions{})
	require.NoError(t, err)
	b, err := s.Add(ctx, "bob", "b", AddOptions{ChannelID: "public"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.Add(ctx, "bob", "reply", AddOptions{ThreadID: a.ID})
		require.NoError(t, err)
	}
	first := s.ListThread(a.ID)[1]
	_, err = s.Add(ctx, "carol", "nested", AddOptions{ThreadID: a.ID, ParentID: first.ID})
	require.NoError(t, err)
	_, err = s.Update(ctx, a.ID, "alice", "a!")
	require.NoError(t, err)
	_, err = s.AddReaction(ctx, b.ID, "alice", "cool")
	require.NoError(t, err)

	for _, r := range s.ListRoots("public", NewestFirst) {
		thread := s.ListThread(r.ID)
		assert.Equal(t, len(thread)-1, r.ReplyCount, r.Text)
		assert.Equal(t, r.ID, thread[0].ID)
		seen := 0
		for _, m := range thread {
			if m.ID == r.ID {
				seen++
			}
		}
		assert.Equal(t, 1, seen)
	}
}

func TestListRootsOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, docstore.NewMemory())

	first, err := s.Add(ctx, "alice", "first", AddOptions{})
	require.NoError(t, err)
	second, err := s.Add(ctx, "alice", "second", AddOptions{})
	require.NoError(t, err)
	_, err = s.Add(ctx, "alice", "elsewhere", AddOptions{ChannelID: "introduction"})
	require.NoError(t, err)

	newest := s.ListRoots("public", NewestFirst)
	require.Len(t, newest, 2)
	assert.Equal(t, second.ID, newest[0].ID)
	assert.Equal(t, first.ID, newest[1].ID)

	oldest := s.ListRoots("public", ParseOrder("asc"))
	assert.Equal(t, first.ID, oldest[0].ID)

	assert.Empty(t, s.ListRoots("nowhere", NewestFirst))
}

func TestAddValidation(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t, docstore.NewMemory())

	_, err := s.Add(ctx, "alice", "   ", AddOptions{})
	assert.ErrorIs(t, err, apperr.ErrRequiredMessage)

	_, err = s.Add(ctx, "alice", "hi", AddOptions{ChannelID: "nowhere"})
	assert.ErrorIs(t, err, apperr.ErrNoSuchChannel)

	_, err = s.Add(ctx, "alice", "hi", AddOptions{ThreadID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNoSuchThread)

	root, err := s.Add(ctx, "alice", "root", AddOptions{})
	require.NoError(t, err)
	reply, err := s.Add(ctx, "bob", "reply", AddOptions{ThreadID: root.ID})
	require.NoError(t, err)

	// replies cannot start threads
	_, err = s.Add(ctx, "bob", "deeper", AddOptions{ThreadID: reply.ID})
	assert.ErrorIs(t, err, apperr.ErrNoSuchThread)

	other, err := s.Add(ctx, "alice", "other", AddOptions{})
	require.NoError(t, err)
	_, err = s.Add(ctx, "bob", "wrong parent", AddOptions{ThreadID: root.ID, ParentID: other.ID})
	assert.ErrorIs(t, err, apperr.ErrInvalidParent)

	assert.Len(t, s.ListThread(root.ID), 2)
	assert.Len(t, rec.all(), 3)
}

func TestReplyNotifiesThreadUpdate(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t, docstore.NewMemory())

	root, err := s.Add(ctx, "alice", "root", AddOptions{})
	require.NoError(t, err)
	_, err = s.Add(ctx, "bob", "one", AddOptions{ThreadID: root.ID})
	require.NoError(t, err)
	_, err = s.Add(ctx, "bob", "two", AddOptions{ThreadID: root.ID})
	require.NoError(t, err)

	events := rec.all()
	require.Len(t, events, 3)
	assert.Nil(t, events[0].thread)
	require.NotNil(t, events[1].thread)
	assert.Equal(t, 1, events[1].thread.ReplyCount)
	require.NotNil(t, events[2].thread)
	assert.Equal(t, 2, events[2].thread.ReplyCount)
	assert.Equal(t, root.ID, events[2].thread.ID)
}

func TestEditAuthorization(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t, docstore.NewMemory())

	m, err := s.Add(ctx, "alice", "original", AddOptions{})
	require.NoError(t, err)

	_, err = s.Update(ctx, m.ID, "mallory", "hacked")
	assert.ErrorIs(t, err, apperr.ErrNotAuthorized)
	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Text)
	assert.False(t, got.Edited)

	_, err = s.Update(ctx, m.ID, "alice", "")
	assert.ErrorIs(t, err, apperr.ErrRequiredMessage)

	// blank text is rejected before authorship or existence
	_, err = s.Update(ctx, m.ID, "mallory", "  ")
	assert.ErrorIs(t, err, apperr.ErrRequiredMessage)
	_, err = s.Update(ctx, "missing", "alice", "")
	assert.ErrorIs(t, err, apperr.ErrRequiredMessage)

	_, err = s.Update(ctx, "missing", "alice", "x")
	assert.ErrorIs(t, err, apperr.ErrNoSuchMessage)

	edited, err := s.Update(ctx, m.ID, "alice", "fixed")
	require.NoError(t, err)
	assert.Equal(t, "fixed", edited.Text)
	assert.True(t, edited.Edited)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, "updated", events[1].kind)
	assert.Equal(t, "fixed", events[1].msg.Text)
}

func TestForwardImmutability(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, docstore.NewMemory())

	orig, err := s.Add(ctx, "alice", "before", AddOptions{ChannelID: "introduction"})
	require.NoError(t, err)

	fwd, err := s.Forward(ctx, "bob", orig.ID, "", ForwardOptions{})
	require.NoError(t, err)
	assert.True(t, fwd.IsForwarded)
	assert.Equal(t, ForwardPlaceholder, fwd.Text)
	assert.Equal(t, "bob", fwd.Username)
	// empty channel falls back to the default, not the original's
	assert.Equal(t, DefaultChannel, fwd.ChannelID)
	require.NotNil(t, fwd.OriginalMessage)
	assert.Equal(t, Original{ID: orig.ID, Username: "alice", Text: "before"}, *fwd.OriginalMessage)

	_, err = s.Update(ctx, orig.ID, "alice", "after")
	require.NoError(t, err)

	got, err := s.Get(fwd.ID)
	require.NoError(t, err)
	assert.Equal(t, "before", got.OriginalMessage.Text)

	_, err = s.Forward(ctx, "bob", "missing", "x", ForwardOptions{})
	assert.ErrorIs(t, err, apperr.ErrNoSuchMessage)
}

func TestForwardIntoThread(t *testing.T) {
	ctx := context.Background()
	s, rec := newTestStore(t, docstore.NewMemory())

	orig, err := s.Add(ctx, "alice", "look", AddOptions{ChannelID: "introduction"})
	require.NoError(t, err)
	root, err := s.Add(ctx, "bob", "thread", AddOptions{})
	require.NoError(t, err)

	fwd, err := s.Forward(ctx, "bob", orig.ID, "fyi", ForwardOptions{ThreadID: root.ID})
	require.NoError(t, err)
	assert.Equal(t, root.ID, fwd.ThreadID)
	assert.Equal(t, "public", fwd.ChannelID)
	assert.False(t, fwd.IsRoot())
	assert.Len(t, s.ListThread(root.ID), 2)

	events := rec.all()
	last := events[len(events)-1]
	require.NotNil(t, last.thread)
	assert.True(t, last.msg.IsForwarded)

	_, err = s.Forward(ctx, "bob", orig.ID, "fyi", ForwardOptions{ThreadID: "missing"})
	assert.ErrorIs(t, err, apperr.ErrNoSuchThread)
}

func TestListThreadUnknown(t *testing.T) {
	s, _ := newTestStore(t, docstore.NewMemory())
	assert.Empty(t, s.ListThread("missing"))
	_, err := s.Root("missing")
	assert.ErrorIs(t, err, apperr.ErrNoSuchThread)
}

func TestSnapshotsAreNotShared(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, docstore.NewMemory())

	m, err := s.Add(ctx, "alice", "x", AddOptions{})
	require.NoError(t, err)
	m.Reactions["smile"] = []string{"intruder"}
	m.Text = "changed"

	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Text)
	assert.Empty(t, got.Reactions)
}

func TestFailedPersistLeavesStateUnchanged(t *testing.T) {
	ctx := context.Background()
	docs := &failingDocs{Store: docstore.NewMemory()}
	s, rec := newTestStore(t, docs)

	m, err := s.Add(ctx, "alice", "x", AddOptions{})
	require.NoError(t, err)

	docs.fail = true
	_, err = s.Update(ctx, m.ID, "alice", "y")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	_, err = s.AddReaction(ctx, m.ID, "alice", "rofl")
	require.Error(t, err)

	_, err = s.Add(ctx, "alice", "z", AddOptions{})
	require.Error(t, err)

	got, err := s.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.Text)
	assert.Empty(t, got.Reactions)
	assert.Len(t, s.ListRoots("public", NewestFirst), 1)
	assert.Len(t, rec.all(), 1)
}

func TestLoadRestoresState(t *testing.T) {
	ctx := context.Background()
	docs := docstore.NewMemory()
	s, _ := newTestStore(t, docs)

	root, err := s.Add(ctx, "alice", "root", AddOptions{})
	require.NoError(t, err)
	reply, err := s.Add(ctx, "bob", "reply", AddOptions{ThreadID: root.ID})
	require.NoError(t, err)
	_, err = s.AddReaction(ctx, reply.ID, "alice", "devil")
	require.NoError(t, err)
	_, err = s.Update(ctx, root.ID, "alice", "root v2")
	require.NoError(t, err)

	reloaded, _ := newTestStore(t, docs)
	require.NoError(t, reloaded.Load(ctx))

	roots := reloaded.ListRoots("public", NewestFirst)
	require.Len(t, roots, 1)
	assert.Equal(t, "root v2", roots[0].Text)
	assert.True(t, roots[0].Edited)
	assert.Equal(t, 1, roots[0].ReplyCount)

	thread := reloaded.ListThread(root.ID)
	require.Len(t, thread, 2)
	assert.Equal(t, []string{"alice"}, thread[1].Reactions["devil"])
	assert.Equal(t, root.ID, *thread[1].ParentID)
}
