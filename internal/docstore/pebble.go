package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// Pebble stores documents under "<collection>/<id>" keys in a pebble
// database. Writes are synced.
type Pebble struct {
	mu     sync.RWMutex
	db     *pebble.DB
	closed bool
}

func OpenPebble(path string) (*Pebble, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", path, err)
	}
	return &Pebble{db: db}, nil
}

func (p *Pebble) Put(_ context.Context, collection, id string, doc []byte) error {
	k, err := key(collection, id)
	if err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.db.Set(k, doc, pebble.Sync); err != nil {
		return fmt.Errorf("put %s: %w", k, err)
	}
	return nil
}

func (p *Pebble) Get(_ context.Context, collection, id string) ([]byte, error) {
	k, err := key(collection, id)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrClosed
	}
	v, closer, err := p.db.Get(k)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	defer closer.Close()
	// v is only valid until closer is closed
	return append([]byte(nil), v...), nil
}

func (p *Pebble) Delete(_ context.Context, collection, id string) error {
	k, err := key(collection, id)
	if err != nil {
		return err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	if err := p.db.Delete(k, pebble.Sync); err != nil {
		return fmt.Errorf("delete %s: %w", k, err)
	}
	return nil
}

func (p *Pebble) Scan(ctx context.Context, collection string, fn func(id string, doc []byte) error) error {
	lower := prefix(collection)
	// '0' is the byte after '/'
	upper := []byte(collection + "0")

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	iter, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return fmt.Errorf("scan %s: %w", collection, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		id := string(iter.Key()[len(lower):])
		doc := append([]byte(nil), iter.Value()...)
		if err := fn(id, doc); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (p *Pebble) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.closed = true
	return p.db.Close()
}
