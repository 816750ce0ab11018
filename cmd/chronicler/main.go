// Command chronicler fetches activity records from software
// development data sources and prints them as a JSON document stream.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chronicle-labs/chronicler/internal/adapters/driven/config/file"
	"github.com/chronicle-labs/chronicler/internal/adapters/driven/storage/sqlite"
	"github.com/chronicle-labs/chronicler/internal/adapters/driving/cli"
	"github.com/chronicle-labs/chronicler/internal/backends/github"
	"github.com/chronicle-labs/chronicler/internal/core/services"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	baseDir := os.Getenv("CHRONICLER_HOME")
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: resolving home directory: %v\n", err)
			return 1
		}
		baseDir = filepath.Join(home, ".chronicler")
	}

	configStore, err := file.NewConfigStore(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening config: %v\n", err)
		return 1
	}

	checkpointStore, err := sqlite.NewStore(filepath.Join(baseDir, "data"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: opening checkpoint store: %v\n", err)
		return 1
	}
	defer checkpointStore.Close()

	registry := services.NewBackendRegistry()
	registry.Register(github.BackendName, github.Factory)

	cli.SetVersion(version)
	cli.SetRegistry(registry)
	cli.SetConfigStore(configStore)
	cli.SetCheckpointStore(checkpointStore)
	cli.SetArchiveRoot(filepath.Join(baseDir, "archives"))

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.ExitCode(err)
	}
	return 0
}
