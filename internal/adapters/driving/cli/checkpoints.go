package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage stored fetch checkpoints",
}

var checkpointsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored checkpoints",
	RunE:  runCheckpointsList,
}

var checkpointsDeleteCmd = &cobra.Command{
	Use:   "delete <backend> <origin> <category>",
	Short: "Delete the checkpoint of a source and category",
	Args:  cobra.ExactArgs(3),
	RunE:  runCheckpointsDelete,
}

func init() {
	checkpointsCmd.AddCommand(checkpointsListCmd)
	checkpointsCmd.AddCommand(checkpointsDeleteCmd)
	rootCmd.AddCommand(checkpointsCmd)
}

func runCheckpointsList(cmd *cobra.Command, _ []string) error {
	if checkpointStore == nil {
		return errors.New("checkpoint store not configured")
	}

	recs, err := checkpointStore.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		cmd.Println("No checkpoints stored.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BACKEND\tORIGIN\tCATEGORY\tCURSOR\tFETCHED\tUPDATED")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.BackendName, rec.Origin, rec.Category,
			rec.Checkpoint.Cursor, rec.Fetched, rec.UpdatedAt.Format(time.RFC3339))
	}
	return w.Flush()
}

func runCheckpointsDelete(cmd *cobra.Command, args []string) error {
	if checkpointStore == nil {
		return errors.New("checkpoint store not configured")
	}

	if err := checkpointStore.Delete(cmd.Context(), args[0], args[1], args[2]); err != nil {
		return err
	}
	cmd.Println("Checkpoint deleted.")
	return nil
}
