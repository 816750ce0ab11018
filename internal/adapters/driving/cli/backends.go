package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available backends",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if registry == nil {
			return errors.New("backend registry not configured")
		}
		for _, name := range registry.Names() {
			cmd.Println(name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backendsCmd)
}
