package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/chronicle-labs/chronicler/internal/archive"
	"github.com/chronicle-labs/chronicler/internal/core/services"
	"github.com/chronicle-labs/chronicler/internal/httpclient"
)

var archivesFlags struct {
	since string
	all   bool
}

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "Manage stored response archives",
}

var archivesListCmd = &cobra.Command{
	Use:   "list <backend> <origin>",
	Short: "List archives for a source",
	Args:  cobra.ExactArgs(2),
	RunE:  runArchivesList,
}

var archivesDeleteCmd = &cobra.Command{
	Use:   "delete <backend> <origin> [name]",
	Short: "Delete one archive, or all with --all",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runArchivesDelete,
}

func init() {
	archivesListCmd.Flags().StringVar(&archivesFlags.since, "since", "", "only archives stored on or after this date")
	archivesDeleteCmd.Flags().BoolVar(&archivesFlags.all, "all", false, "delete every archive of the source")

	archivesCmd.AddCommand(archivesListCmd)
	archivesCmd.AddCommand(archivesDeleteCmd)
	rootCmd.AddCommand(archivesCmd)
}

// sourceManager builds the archive manager for a backend/origin pair.
// The backend supplies the canonical origin and version used in the
// directory layout.
func sourceManager(backendName, origin string) (*archive.Manager, error) {
	if registry == nil {
		return nil, errors.New("backend registry not configured")
	}
	backend, err := registry.Create(backendName, services.BackendSetup{
		Origin: origin,
		Client: httpclient.New(httpclient.Options{}),
	})
	if err != nil {
		return nil, err
	}
	return archive.NewManager(archiveRoot, backend.Origin(), backend.Name(), backend.Version())
}

func runArchivesList(cmd *cobra.Command, args []string) error {
	manager, err := sourceManager(args[0], args[1])
	if err != nil {
		return err
	}

	since := time.Time{}
	if archivesFlags.since != "" {
		if since, err = parseDate(archivesFlags.since); err != nil {
			return err
		}
	}

	names, err := manager.List(since)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		cmd.Println("No archives found.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}

func runArchivesDelete(cmd *cobra.Command, args []string) error {
	manager, err := sourceManager(args[0], args[1])
	if err != nil {
		return err
	}

	if archivesFlags.all {
		if err := manager.DeleteAll(); err != nil {
			return err
		}
		cmd.Println("All archives deleted.")
		return nil
	}

	if len(args) < 3 {
		return fmt.Errorf("archive name required (or use --all)")
	}
	if err := manager.Delete(args[2]); err != nil {
		return err
	}
	cmd.Printf("Archive %s deleted.\n", args[2])
	return nil
}
