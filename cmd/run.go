package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cansim/cansim/internal/config"
	"github.com/cansim/cansim/internal/dependency"
	"github.com/cansim/cansim/internal/scenario"
	"github.com/cansim/cansim/internal/trace"
)

var runVerbose bool

var runCmd = &cobra.Command{
	Use:   "run <scenario.yaml>",
	Short: "Run a scenario and print the delivery trace",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Verbose logging")
}

func runRun(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(runVerbose || cfg.Verbose)

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}

	scn, err := scenario.Load(scenarioPath(cfg, args[0]))
	if err != nil {
		return err
	}

	rec := container.Recorder()
	rec.Subscribe(trace.SinkFunc(func(ev trace.Event) {
		fmt.Println(rec.Render(ev))
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.NewRunner(scn).Run(ctx); err != nil {
		return fmt.Errorf("scenario %s: %w", scn.Name, err)
	}
	fmt.Printf("\n%s: ok, %d deliveries\n", scn.Name, len(rec.Events()))
	return nil
}
