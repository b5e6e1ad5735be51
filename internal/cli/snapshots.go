package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"marketwatch/internal/snapshot"
)

func newSnapshotsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshots",
		Short: "List stored snapshots and their record counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := snapshot.NewStore(app.Config.Data.Dir)
			if err != nil {
				return err
			}
			names, err := store.List()
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no snapshots")
				return nil
			}
			for _, name := range names {
				records, err := store.Read(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-28s %d records\n", name, len(records))
			}
			return nil
		},
	}
}
