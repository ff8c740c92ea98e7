package channels

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pelusa-v/threadchat/internal/apperr"
	"github.com/pelusa-v/threadchat/internal/docstore"
	"github.com/pelusa-v/threadchat/internal/metrics"
)

var namePattern = regexp.MustCompile(`^[a-z0-9\-_]{2,20}$`)

// Bootstrap channels, always present after Bootstrap.
var Defaults = []string{"public", "introduction"}

type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type record struct {
	V         int       `json:"v"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Observer is told about every channel created after bootstrap.
type Observer interface {
	ChannelCreated(Channel)
}

type Registry struct {
	mu       sync.RWMutex
	order    []Channel
	byID     map[string]Channel
	store    docstore.Store
	admin    string
	observer Observer
	log      *slog.Logger
	now      func() time.Time
}

func NewRegistry(store docstore.Store, admin string, logger *slog.Logger) *Registry {
	return &Registry{
		byID:  map[string]Channel{},
		store: store,
		admin: admin,
		log:   logger,
		now:   time.Now,
	}
}

// SetObserver must be called before the registry serves requests.
func (r *Registry) SetObserver(o Observer) {
	r.observer = o
}

func (r *Registry) Admin() string { return r.admin }

// Bootstrap loads persisted channels in creation order and seeds the
// default channels that are missing.
func (r *Registry) Bootstrap(ctx context.Context) error {
	recs, err := docstore.ScanJSON[record](ctx, r.store, docstore.Channels)
	if err != nil {
		return fmt.Errorf("load channels: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].ID < recs[j].ID
		}
		return recs[i].CreatedAt.Before(recs[j].CreatedAt)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range recs {
		if _, ok := r.byID[rec.ID]; ok {
			continue
		}
		r.appendLocked(Channel{ID: rec.ID, Name: rec.Name})
	}
	seeded := r.now().UTC()
	for i, name := range Defaults {
		if _, ok := r.byID[name]; ok {
			continue
		}
		ch := Channel{ID: name, Name: name}
		// distinct stamps keep the seed order on reload
		if err := r.persist(ctx, ch, seeded.Add(time.Duration(i))); err != nil {
			return err
		}
		r.appendLocked(ch)
	}
	r.log.Info("channels_loaded", "count", len(r.order))
	return nil
}

func (r *Registry) List() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Channel, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Get(id string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.byID[id]
	if !ok {
		return Channel{}, apperr.ErrNoSuchChannel
	}
	return ch, nil
}

func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

func (r *Registry) Create(ctx context.Context, name, requestingUser string) (Channel, error) {
	if requestingUser != r.admin {
		return Channel{}, apperr.ErrAuthInsufficient
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Channel{}, apperr.ErrRequiredName
	}
	if !namePattern.MatchString(name) {
		return Channel{}, apperr.ErrInvalidChannelName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[name]; ok {
		return Channel{}, apperr.ErrChannelExists
	}
	ch := Channel{ID: name, Name: name}
	if err := r.persist(ctx, ch, r.now().UTC()); err != nil {
		return Channel{}, err
	}
	r.appendLocked(ch)
	metrics.ChannelsCreated.Inc()
	r.log.Info("channel_created", "channel", ch.ID, "by", requestingUser)

	// under the lock so channel-created events leave in creation order
	if r.observer != nil {
		r.observer.ChannelCreated(ch)
	}
	return ch, nil
}

func (r *Registry) appendLocked(ch Channel) {
	r.order = append(r.order, ch)
	r.byID[ch.ID] = ch
}

func (r *Registry) persist(ctx context.Context, ch Channel, at time.Time) error {
	rec := record{V: 1, ID: ch.ID, Name: ch.Name, CreatedAt: at}
	if err := docstore.PutJSON(ctx, r.store, docstore.Channels, ch.ID, rec); err != nil {
		return apperr.Internal(fmt.Errorf("persist channel %s: %w", ch.ID, err))
	}
	return nil
}
