package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cansim/cansim/internal/config"
	"github.com/cansim/cansim/internal/scenario"
)

var checkCmd = &cobra.Command{
	Use:   "check <scenario.yaml>",
	Short: "Validate a scenario file without running it",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheck,
}

func runCheck(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scn, err := scenario.Load(scenarioPath(cfg, args[0]))
	if err != nil {
		return err
	}
	fmt.Printf("%s: ok (%d nodes, %d steps, %d cyclic frames)\n",
		scn.Name, len(scn.Nodes), len(scn.Steps), len(scn.Cyclic))
	return nil
}
