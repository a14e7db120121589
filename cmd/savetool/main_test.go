package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-features/pkg/config"
	"github.com/goliatone/go-features/pkg/save"
	"github.com/goliatone/go-features/pkg/state"
	"github.com/goliatone/go-features/pkg/state/sqlite"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func seedStore(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "saves.db")
	db, err := sqlite.Open(path)
	require.NoError(t, err)
	defer db.Close()

	blobs := sqlite.NewStore[string](db)
	manager, err := save.NewManager(config.Default().Mod(), blobs, sqlite.NewStore[save.Settings](db))
	require.NoError(t, err)
	_, err = manager.Boot(ctx)
	require.NoError(t, err)
	_, err = manager.NewSave(ctx)
	require.NoError(t, err)

	layered, err := save.Encode(save.Save{
		ID:     "mod-5",
		Name:   "Layered",
		ModID:  "mod",
		Layers: map[string]map[string]json.RawMessage{"main": {"points": json.RawMessage(`"42"`)}},
	})
	require.NoError(t, err)
	_, err = blobs.Save(ctx, state.Ref{Domain: save.DomainSaves, Key: "mod-5"}, layered, state.Meta{})
	require.NoError(t, err)
	return path
}

func TestListShowDelete(t *testing.T) {
	path := seedStore(t)

	out, err := execute(t, "", "list", "--store", path)
	require.NoError(t, err)
	require.Contains(t, out, "ID")
	require.Contains(t, out, "mod-0")
	require.Contains(t, out, "mod-1")
	require.Contains(t, out, "Layered")
	require.Contains(t, out, "*")

	out, err = execute(t, "", "show", "mod-5", "--store", path)
	require.NoError(t, err)
	require.Contains(t, out, "name:        Layered")
	require.Contains(t, out, "main.points (string)")

	out, err = execute(t, "", "delete", "mod-1", "--store", path)
	require.NoError(t, err)
	require.Contains(t, out, "deleted mod-1")

	out, err = execute(t, "", "list", "--store", path)
	require.NoError(t, err)
	require.NotContains(t, out, "mod-1")

	_, err = execute(t, "", "show", "mod-1", "--store", path)
	require.ErrorIs(t, err, state.ErrNotFound)
}

func TestEncodeDecodeThroughStdin(t *testing.T) {
	blob, err := execute(t, `{"id":"mod-9","name":"Piped","modID":"mod","timePlayed":"12"}`, "encode")
	require.NoError(t, err)
	blob = strings.TrimSpace(blob)
	require.NotEmpty(t, blob)
	require.False(t, strings.HasPrefix(blob, "{"))

	out, err := execute(t, blob, "decode", "-")
	require.NoError(t, err)

	var decoded save.Save
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Equal(t, "mod-9", decoded.ID)
	require.Equal(t, "Piped", decoded.Name)
	require.Equal(t, "12", decoded.TimePlayed.String())
}

func TestEncodeRejectsBlobs(t *testing.T) {
	_, err := execute(t, "not json", "encode")
	require.Error(t, err)

	_, err = execute(t, "%%%", "decode")
	require.ErrorIs(t, err, save.ErrCorruptSave)
}
