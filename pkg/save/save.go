// Package save encodes saves, keeps track of the saves a player owns and
// loads one of them into the live layers.
//
// A save blob is the base64 encoding of the save's UTF-8 JSON document. Blobs
// that start with "{" are read as plain JSON.
package save

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/goliatone/go-features/internal/hydrate"
	"github.com/goliatone/go-features/pkg/decimal"
)

var (
	// ErrCorruptSave is returned for blobs that are not valid base64, UTF-8
	// or JSON.
	ErrCorruptSave = errors.New("save: corrupt save")
	// ErrForeignSave is returned for saves written by another mod.
	ErrForeignSave = errors.New("save: foreign save")
	// ErrNoActiveSave is returned by operations that need a loaded save.
	ErrNoActiveSave = errors.New("save: no active save")
)

// Save is one player save. Layers maps a layer id to the JSON encoded values
// of that layer's cells.
type Save struct {
	ID          string                                `json:"id"`
	Name        string                                `json:"name"`
	Tabs        []string                              `json:"tabs"`
	Time        int64                                 `json:"time"`
	Autosave    bool                                  `json:"autosave"`
	OfflineProd bool                                  `json:"offlineProd"`
	OfflineTime decimal.Decimal                       `json:"offlineTime"`
	TimePlayed  decimal.Decimal                       `json:"timePlayed"`
	KeepGoing   bool                                  `json:"keepGoing"`
	ModID       string                                `json:"modID"`
	ModVersion  string                                `json:"modVersion"`
	Layers      map[string]map[string]json.RawMessage `json:"layers"`
}

// Clone returns a copy that shares no slices or maps with s.
func (s Save) Clone() Save {
	out := s
	if s.Tabs != nil {
		out.Tabs = append([]string(nil), s.Tabs...)
	}
	if s.Layers != nil {
		out.Layers = make(map[string]map[string]json.RawMessage, len(s.Layers))
		for id, cells := range s.Layers {
			copied := make(map[string]json.RawMessage, len(cells))
			for key, raw := range cells {
				copied[key] = append(json.RawMessage(nil), raw...)
			}
			out.Layers[id] = copied
		}
	}
	return out
}

// Encode produces the blob for s.
func Encode(s Save) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("save: encode %q: %w", s.ID, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Decode reads a blob onto the value returned by defaults, so fields the blob
// lacks keep their default. A nil defaults starts from the zero Save.
func Decode(blob string, defaults func() Save) (Save, error) {
	raw, err := unwrap(blob)
	if err != nil {
		return Save{}, err
	}
	decoder := hydrate.NewDecoder(hydrate.WithDefaults(defaults))
	s, err := decoder.Decode(hydrate.Context{SaveID: peekID(raw)}, raw)
	if err != nil {
		return Save{}, fmt.Errorf("%w: %w", ErrCorruptSave, err)
	}
	return s, nil
}

// unwrap turns a blob into the JSON document it carries.
func unwrap(blob string) ([]byte, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, fmt.Errorf("%w: empty blob", ErrCorruptSave)
	}
	if strings.HasPrefix(blob, "{") {
		return []byte(blob), nil
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		if raw, err = base64.RawStdEncoding.DecodeString(blob); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptSave, err)
		}
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: blob is not utf-8 text", ErrCorruptSave)
	}
	return raw, nil
}

// peekID reads the id of a document that may not decode as a whole.
func peekID(raw []byte) string {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return ""
	}
	return head.ID
}
