// Command savetool inspects and edits the saves of a mod.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	feat "github.com/goliatone/go-features"
	"github.com/goliatone/go-features/pkg/activity"
	"github.com/goliatone/go-features/pkg/config"
	"github.com/goliatone/go-features/pkg/format"
	"github.com/goliatone/go-features/pkg/save"
	"github.com/goliatone/go-features/pkg/state"
	"github.com/goliatone/go-features/pkg/state/sqlite"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globals struct {
	configPath string
	storePath  string
}

func rootCmd() *cobra.Command {
	g := &globals{}
	cmd := &cobra.Command{
		Use:   "savetool",
		Short: "Inspect and edit saves",
		Long: `Inspect and edit the saves stored for a mod.

Examples:
  savetool list --config mod.yaml
  savetool show mod-0
  savetool decode < save.txt
  savetool encode save.json
`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Mod info YAML file")
	cmd.PersistentFlags().StringVar(&g.storePath, "store", "", "SQLite database path (overrides the mod info)")

	cmd.AddCommand(encodeCmd(), decodeCmd(), listCmd(g), showCmd(g), deleteCmd(g))
	return cmd
}

// readInput returns the named file, or stdin for "-" and no argument.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) > 0 && args[0] != "-" {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode [file|-]",
		Short: "Encode a JSON save into a blob",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			if !strings.HasPrefix(strings.TrimSpace(input), "{") {
				return fmt.Errorf("encode expects a JSON document")
			}
			s, err := save.Decode(input, nil)
			if err != nil {
				return err
			}
			blob, err := save.Encode(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), blob)
			return nil
		},
	}
}

func decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode [file|-]",
		Short: "Decode a blob into indented JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			s, err := save.Decode(input, nil)
			if err != nil {
				return err
			}
			out := json.NewEncoder(cmd.OutOrStdout())
			out.SetIndent("", "  ")
			return out.Encode(s)
		},
	}
}

// session is an open store plus a manager for the configured mod.
type session struct {
	db      *sqlite.DB
	blobs   state.Store[string]
	manager *save.Manager
	journal *activity.Journal
}

func (g *globals) open(cmd *cobra.Command) (*session, error) {
	info, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.storePath != "" {
		info.StorePath = g.storePath
	}
	db, err := sqlite.Open(info.StorePath)
	if err != nil {
		return nil, err
	}
	blobs := sqlite.NewStore[string](db)
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	journal := &activity.Journal{}
	manager, err := save.NewManager(info.Mod(), blobs, sqlite.NewStore[save.Settings](db),
		save.WithLogger(logger),
		save.WithTabs(info.InitialTabs...),
		save.WithActivity(activity.NewEmitter(activity.Hooks{journal}, activity.Config{Enabled: true})),
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{db: db, blobs: blobs, manager: manager, journal: journal}, nil
}

func listCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored saves",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.db.Close()

			ctx := contextOf(cmd)
			saves, err := s.manager.List(ctx)
			if err != nil {
				return err
			}
			settings, err := s.manager.Settings(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tVERSION\tPLAYED\tACTIVE")
			for _, entry := range saves {
				active := ""
				if entry.ID == settings.Active {
					active = "*"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", entry.ID, entry.Name, entry.ModVersion,
					format.FormatTime(entry.TimePlayed.Float64()), active)
			}
			return w.Flush()
		},
	}
}

func showCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a save and the cells stored per layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.db.Close()

			blob, _, ok, err := s.blobs.Load(contextOf(cmd), state.Ref{Domain: save.DomainSaves, Key: args[0]})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%w: %s", state.ErrNotFound, args[0])
			}
			decoded, err := save.Decode(blob, nil)
			if err != nil {
				return err
			}
			return describe(cmd.OutOrStdout(), decoded)
		},
	}
}

func describe(out io.Writer, s save.Save) error {
	fmt.Fprintf(out, "id:          %s\n", s.ID)
	fmt.Fprintf(out, "name:        %s\n", s.Name)
	fmt.Fprintf(out, "mod:         %s %s\n", s.ModID, s.ModVersion)
	fmt.Fprintf(out, "played:      %s\n", format.FormatTime(s.TimePlayed.Float64()))
	fmt.Fprintf(out, "offline:     %s\n", format.FormatTime(s.OfflineTime.Float64()))
	fmt.Fprintf(out, "autosave:    %t\n", s.Autosave)

	raw, err := json.Marshal(s.Layers)
	if err != nil {
		return err
	}
	var layers map[string]any
	if err := json.Unmarshal(raw, &layers); err != nil {
		return err
	}
	fmt.Fprintln(out, "cells:")
	for _, field := range feat.Describe(layers) {
		fmt.Fprintf(out, "  %s (%s)\n", field.Path, field.Type)
	}
	return nil
}

func deleteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a stored save",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open(cmd)
			if err != nil {
				return err
			}
			defer s.db.Close()
			if err := s.manager.Delete(contextOf(cmd), args[0]); err != nil {
				return err
			}
			for _, event := range s.journal.History(args[0]) {
				if event.Verb == activity.VerbSaveDeleted {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", event.ObjectID)
				}
			}
			return nil
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
