package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opsai/opsflow/engine/workflow"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate workflow definition files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", path, err)
					continue
				}
				cfg, err := workflow.FromYAML(data)
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", path, err)
					continue
				}
				cmd.Printf("%s: ok (%s, %d steps)\n", path, cfg.Name, len(cfg.Steps))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d definitions failed validation", failed, len(args))
			}
			return nil
		},
	}
}
