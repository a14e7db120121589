package save

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-features/pkg/decimal"
)

func sampleSave() Save {
	return Save{
		ID:          "tmt-2",
		Name:        "Speedrun ✓",
		Tabs:        []string{"main", "prestige"},
		Time:        1700000000123,
		Autosave:    true,
		OfflineProd: false,
		OfflineTime: decimal.FromFloat(12.5),
		TimePlayed:  decimal.MustParse("1e500"),
		KeepGoing:   true,
		ModID:       "tmt",
		ModVersion:  "1.0",
		Layers: map[string]map[string]json.RawMessage{
			"main": {
				"points":           json.RawMessage(`"42"`),
				"generator.amount": json.RawMessage(`"3"`),
				"ticks":            json.RawMessage(`9007199254740993`),
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleSave()
	blob, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(blob, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !got.OfflineTime.Eq(want.OfflineTime) || !got.TimePlayed.Eq(want.TimePlayed) {
		t.Fatalf("decimal fields changed: offline=%s played=%s", got.OfflineTime, got.TimePlayed)
	}
	if ticks := string(got.Layers["main"]["ticks"]); ticks != "9007199254740993" {
		t.Fatalf("expected integer cell kept exactly, got %s", ticks)
	}
	got.OfflineTime, got.TimePlayed = decimal.Zero, decimal.Zero
	want.OfflineTime, want.TimePlayed = decimal.Zero, decimal.Zero
	if !reflect.DeepEqual(want, got) {
		t.Fatalf("round trip mismatch:\nwant: %#v\n got: %#v", want, got)
	}
}

func TestBlobIsBase64OfJSON(t *testing.T) {
	blob, err := Encode(sampleSave())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("expected base64 blob: %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("expected JSON document: %v", err)
	}
	if doc["name"] != "Speedrun ✓" || doc["modID"] != "tmt" {
		t.Fatalf("unexpected document %v", doc)
	}
}

func TestDecodeAcceptsPlainJSONAndKeepsDefaults(t *testing.T) {
	defaults := func() Save {
		return Save{Name: "Default Save", Autosave: true, Tabs: []string{"main"}}
	}
	got, err := Decode(` {"id":"tmt-9","modID":"tmt","timePlayed":30}`, defaults)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "tmt-9" || got.Name != "Default Save" || !got.Autosave || len(got.Tabs) != 1 {
		t.Fatalf("expected defaults under a partial document, got %#v", got)
	}
	if !got.TimePlayed.Eq(decimal.FromFloat(30)) {
		t.Fatalf("expected numeric timePlayed accepted, got %s", got.TimePlayed)
	}
}

func TestDecodeRejectsCorruptBlobs(t *testing.T) {
	cases := []struct {
		name string
		blob string
	}{
		{name: "empty", blob: "   "},
		{name: "not base64", blob: "%%% not a save %%%"},
		{name: "not utf-8", blob: base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, 0xfd})},
		{name: "not an object", blob: base64.StdEncoding.EncodeToString([]byte(`[1,2,3]`))},
		{name: "truncated json", blob: `{"id":"tmt-1",`},
		{name: "bad decimal", blob: `{"id":"tmt-1","offlineTime":"lots"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Decode(tc.blob, nil); !errors.Is(err, ErrCorruptSave) {
				t.Fatalf("expected corrupt save error, got %v", err)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := sampleSave()
	copied := original.Clone()
	copied.Tabs[0] = "changed"
	copied.Layers["main"]["points"] = json.RawMessage(`"0"`)
	if original.Tabs[0] != "main" || string(original.Layers["main"]["points"]) != `"42"` {
		t.Fatalf("expected clone to share nothing with the original")
	}
}
