package state

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-features/layering"
)

var (
	ErrETagMismatch = errors.New("state: etag mismatch")
	ErrNotFound     = errors.New("state: not found")
)

// Ref identifies one persisted document.
type Ref struct {
	Domain string
	Key    string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store persists documents of type T.
type Store[T any] interface {
	Load(ctx context.Context, ref Ref) (snapshot T, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, snapshot T, meta Meta) (Meta, error)
	Delete(ctx context.Context, ref Ref) error
	List(ctx context.Context, domain string) ([]Ref, error)
}

// Validator is implemented by documents that check themselves before a
// mutation is saved.
type Validator interface {
	Validate() error
}

// Resolver loads documents, layering defaults underneath, and applies
// mutations.
type Resolver[T any] struct {
	Store Store[T]
}

type Mutator[T any] func(*T) error

// Identifier is the canonical storage key, "<domain>/<key>".
func (r Ref) Identifier() (string, error) {
	if r.Domain == "" {
		return "", fmt.Errorf("state: domain is required")
	}
	if r.Key == "" {
		return "", fmt.Errorf("state: key is required for domain %q", r.Domain)
	}
	if strings.Contains(r.Domain, "/") {
		return "", fmt.Errorf("state: domain %q must not contain '/'", r.Domain)
	}
	return r.Domain + "/" + r.Key, nil
}

// Resolve loads ref and returns ErrNotFound when it does not exist.
func (r Resolver[T]) Resolve(ctx context.Context, ref Ref) (T, Meta, error) {
	var zero T
	if r.Store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	snapshot, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.Domain, ref.Key, err)
	}
	if !ok {
		return zero, Meta{}, fmt.Errorf("%w: %s/%s", ErrNotFound, ref.Domain, ref.Key)
	}
	return snapshot, meta, nil
}

// ResolveWithDefaults loads ref and fills anything it leaves unset from
// defaults. A missing document resolves to defaults.
func (r Resolver[T]) ResolveWithDefaults(ctx context.Context, ref Ref, defaults T) (T, Meta, error) {
	if r.Store == nil {
		var zero T
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	snapshot, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		var zero T
		return zero, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.Domain, ref.Key, err)
	}
	if !ok {
		return layering.Clone(defaults), Meta{}, nil
	}
	return layering.MergeLayers(snapshot, defaults), meta, nil
}

// Mutate loads one document, applies fn, validates and saves it. A non-empty
// meta.ETag must match the stored one.
func (r Resolver[T]) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator[T]) (T, Meta, error) {
	var zero T
	if r.Store == nil {
		return zero, Meta{}, fmt.Errorf("state: store is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return zero, Meta{}, err
	}
	if fn == nil {
		return zero, Meta{}, fmt.Errorf("state: mutator is required")
	}

	snapshot, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return zero, Meta{}, fmt.Errorf("state: load %q/%q: %w", ref.Domain, ref.Key, err)
	}
	if !ok {
		snapshot = zero
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return zero, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(&snapshot); err != nil {
		return zero, loadedMeta, err
	}
	if v, ok := any(snapshot).(Validator); ok {
		if err := v.Validate(); err != nil {
			return zero, loadedMeta, err
		}
	}

	savedMeta, err := r.Store.Save(ctx, ref, snapshot, mergeMeta(loadedMeta, meta))
	if err != nil {
		return zero, loadedMeta, fmt.Errorf("state: save %q/%q: %w", ref.Domain, ref.Key, err)
	}
	return snapshot, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
