// Package docstore is the persistence collaborator: JSON documents addressed
// by collection and id, with basic CRUD and an ordered scan per collection.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrClosed   = errors.New("store closed")
	ErrBadKey   = errors.New("invalid collection or id")
)

const (
	Users    = "users"
	Sessions = "sessions"
	Channels = "channels"
	Messages = "messages"
)

type Store interface {
	Put(ctx context.Context, collection, id string, doc []byte) error
	Get(ctx context.Context, collection, id string) ([]byte, error)
	Delete(ctx context.Context, collection, id string) error
	// Scan calls fn for every document of collection in id order. Returning
	// an error from fn stops the scan and is passed through.
	Scan(ctx context.Context, collection string, fn func(id string, doc []byte) error) error
	Close() error
}

func key(collection, id string) ([]byte, error) {
	if collection == "" || id == "" || strings.Contains(collection, "/") {
		return nil, fmt.Errorf("%w: %q/%q", ErrBadKey, collection, id)
	}
	return []byte(collection + "/" + id), nil
}

func prefix(collection string) []byte {
	return []byte(collection + "/")
}

// PutJSON encodes v and stores it under collection/id.
func PutJSON(ctx context.Context, s Store, collection, id string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return s.Put(ctx, collection, id, raw)
}

func GetJSON[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	var out T
	raw, err := s.Get(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return out, nil
}

// ScanJSON decodes every document of collection into T.
func ScanJSON[T any](ctx context.Context, s Store, collection string) ([]T, error) {
	var out []T
	err := s.Scan(ctx, collection, func(id string, doc []byte) error {
		var v T
		if err := json.Unmarshal(doc, &v); err != nil {
			return fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
