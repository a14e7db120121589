package layering

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/goliatone/go-features/pkg/decimal"
)

type saveSettings struct {
	Active   string                     `json:"active,omitempty"`
	Saves    []string                   `json:"saves,omitempty"`
	Autosave *bool                      `json:"autosave,omitempty"`
	Layers   map[string]json.RawMessage `json:"layers,omitempty"`
	Limit    decimal.Decimal            `json:"limit"`
}

func boolPtr(v bool) *bool { return &v }

func TestMergeLayers(t *testing.T) {
	defaults := saveSettings{
		Saves:    []string{"mod-0"},
		Autosave: boolPtr(true),
		Layers:   map[string]json.RawMessage{"main": json.RawMessage(`{}`), "fome": json.RawMessage(`{}`)},
		Limit:    decimal.MustParse("1e400"),
	}

	cases := []struct {
		name   string
		strong saveSettings
		expect saveSettings
	}{
		{
			name:   "empty strong layer takes defaults",
			strong: saveSettings{},
			expect: saveSettings{
				Saves:    []string{"mod-0"},
				Autosave: boolPtr(true),
				Layers:   map[string]json.RawMessage{"main": json.RawMessage(`{}`), "fome": json.RawMessage(`{}`)},
			},
		},
		{
			name: "explicit values win and maps merge by key",
			strong: saveSettings{
				Active:   "mod-3",
				Autosave: boolPtr(false),
				Layers:   map[string]json.RawMessage{"main": json.RawMessage(`{"points":"10"}`)},
				Limit:    decimal.FromFloat(5),
			},
			expect: saveSettings{
				Active:   "mod-3",
				Saves:    []string{"mod-0"},
				Autosave: boolPtr(false),
				Layers:   map[string]json.RawMessage{"main": json.RawMessage(`{"points":"10"}`), "fome": json.RawMessage(`{}`)},
				Limit:    decimal.FromFloat(5),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MergeLayers(tc.strong, defaults)
			if !reflect.DeepEqual(tc.expect, got) {
				t.Errorf("merged snapshot mismatch:\nwant: %#v\n got: %#v", tc.expect, got)
			}
		})
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	type sample struct {
		Value int
	}
	var zero sample
	if got := MergeLayers[sample](); got != zero {
		t.Fatalf("expected MergeLayers() to return zero value, got %+v", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	original := saveSettings{Saves: []string{"a"}, Layers: map[string]json.RawMessage{"main": json.RawMessage(`1`)}, Limit: decimal.MustParse("ee20")}
	cloned := Clone(original)
	cloned.Saves[0] = "b"
	cloned.Layers["main"] = json.RawMessage(`2`)
	if original.Saves[0] != "a" || string(original.Layers["main"]) != "1" {
		t.Fatalf("expected clone to be independent of the original")
	}
	if !cloned.Limit.Eq(original.Limit) {
		t.Fatalf("expected opaque decimal copied intact")
	}
}
