package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-features/pkg/state"
)

func TestRefIdentifier(t *testing.T) {
	cases := []struct {
		name string
		ref  state.Ref
		want string
		err  bool
	}{
		{name: "save", ref: state.Ref{Domain: "saves", Key: "mod-0"}, want: "saves/mod-0"},
		{name: "missing domain", ref: state.Ref{Key: "mod-0"}, err: true},
		{name: "missing key", ref: state.Ref{Domain: "saves"}, err: true},
		{name: "slash in domain", ref: state.Ref{Domain: "a/b", Key: "x"}, err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.ref.Identifier()
			if tc.err {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("expected %q, got %q (%v)", tc.want, got, err)
			}
		})
	}
}

func TestMemoryStoreRoundTripAndList(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[string]()

	first, err := store.Save(ctx, state.Ref{Domain: "saves", Key: "mod-1"}, "blob-1", state.Meta{})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first.ETag == "" || first.SnapshotID == "" || first.UpdatedAt.IsZero() {
		t.Fatalf("expected store-assigned metadata, got %+v", first)
	}
	if _, err := store.Save(ctx, state.Ref{Domain: "saves", Key: "mod-0"}, "blob-0", state.Meta{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := store.Save(ctx, state.Ref{Domain: "settings", Key: "global"}, "{}", state.Meta{}); err != nil {
		t.Fatalf("save: %v", err)
	}

	blob, meta, ok, err := store.Load(ctx, state.Ref{Domain: "saves", Key: "mod-1"})
	if err != nil || !ok || blob != "blob-1" || meta.ETag != first.ETag {
		t.Fatalf("unexpected load %q %+v %v %v", blob, meta, ok, err)
	}

	refs, err := store.List(ctx, "saves")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(refs) != 2 || refs[0].Key != "mod-0" || refs[1].Key != "mod-1" {
		t.Fatalf("expected sorted save refs, got %+v", refs)
	}

	if err := store.Delete(ctx, state.Ref{Domain: "saves", Key: "mod-1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, ok, _ := store.Load(ctx, state.Ref{Domain: "saves", Key: "mod-1"}); ok {
		t.Fatalf("expected deleted save to be gone")
	}
}

func TestMemoryStoreRejectsStaleETag(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore[int]()
	ref := state.Ref{Domain: "saves", Key: "mod-0"}
	first, _ := store.Save(ctx, ref, 1, state.Meta{})
	if _, err := store.Save(ctx, ref, 2, first); err != nil {
		t.Fatalf("expected matching etag accepted: %v", err)
	}
	if _, err := store.Save(ctx, ref, 3, first); !errors.Is(err, state.ErrETagMismatch) {
		t.Fatalf("expected stale etag rejected, got %v", err)
	}
}
