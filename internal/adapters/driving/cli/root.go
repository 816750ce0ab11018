// Package cli implements the chronicler command line interface using
// cobra. Commands receive their collaborators through Set functions
// called by main before Execute.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/chronicle-labs/chronicler/internal/core/domain"
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/core/services"
	"github.com/chronicle-labs/chronicler/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	registry        *services.BackendRegistry
	configStore     driven.ConfigStore
	checkpointStore driven.CheckpointStore

	archiveRoot string

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "chronicler",
	Short: "Fetch activity records from software development sources",
	Long: `chronicler fetches activity records (issues, pull requests,
commits, messages) from software development data sources and emits
them as a uniform stream of JSON documents, one per line.

Responses can be archived during live fetches and replayed later
without network access.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// SetRegistry injects the backend registry.
func SetRegistry(r *services.BackendRegistry) {
	registry = r
}

// SetConfigStore injects the configuration store.
func SetConfigStore(s driven.ConfigStore) {
	configStore = s
}

// SetCheckpointStore injects the checkpoint store.
func SetCheckpointStore(s driven.CheckpointStore) {
	checkpointStore = s
}

// SetArchiveRoot sets the directory archives are stored under.
func SetArchiveRoot(dir string) {
	archiveRoot = dir
}

// SetVersion sets the version printed by the version command.
func SetVersion(v string) {
	version = v
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCode maps a command error to a process exit code. Exhausted
// retries and rate limits get a distinct code so schedulers can back
// off instead of treating the run as broken.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if domain.IsRateLimited(err) || domain.IsRetryExhausted(err) {
		return 2
	}
	return 1
}
