// cmd/replay.go
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"meal-scale/internal/meallog"
	"meal-scale/internal/storage"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		store  bool
		dbPath string
	)

	cmd := &cobra.Command{
		Use:   "replay <file|->",
		Short: "Decode a captured meal log and print its JSON document",
		Long:  "replay reads a meal log as the scale sends it (one record per line, optionally ending in FIN-TRANSMISION), prints the decoded document and can store the meals.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			groups, err := a.groups()
			if err != nil {
				return err
			}

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open log: %w", err)
				}
				defer f.Close()
				in = f
			}

			res, err := meallog.Decode(in,
				meallog.WithGroups(groups),
				meallog.WithLocation(a.location()),
				meallog.WithLogger(a.logger),
			)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res.Document); err != nil {
				return fmt.Errorf("encode document: %w", err)
			}

			if len(res.Problems) > 0 || res.Discarded > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d problem record(s), %d incomplete meal(s) discarded\n", len(res.Problems), res.Discarded)
			}

			if !store {
				return nil
			}
			if dbPath != "" {
				a.cfg.Server.DBPath = dbPath
			}
			st, err := storage.NewSQLiteStorage(a.cfg.Server.DBPath)
			if err != nil {
				return fmt.Errorf("open meal store: %w", err)
			}
			defer st.Close()
			if err := st.SaveMeals(cmd.Context(), res.Meals); err != nil {
				return err
			}
			a.logger.Info("replayed meals stored", "meals", len(res.Meals), "db", a.cfg.Server.DBPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&store, "store", false, "save decoded meals in the meal store")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "SQLite database path (server.db_path)")
	return cmd
}
