package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cansim/cansim/internal/config"
	"github.com/cansim/cansim/internal/dependency"
	"github.com/cansim/cansim/internal/scenario"
	"github.com/cansim/cansim/internal/trace"
)

var (
	watchListen  string
	watchVerbose bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <scenario.yaml>",
	Short: "Run a scenario's cyclic frames and stream deliveries over websocket",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchListen, "listen", "l", "", "Listen address (overrides config)")
	watchCmd.Flags().BoolVarP(&watchVerbose, "verbose", "v", false, "Verbose logging")
}

func runWatch(_ *cobra.Command, args []string) error {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setupLogging(watchVerbose || cfg.Verbose)

	container, err := dependency.New(cfg)
	if err != nil {
		return err
	}

	scn, err := scenario.Load(scenarioPath(cfg, args[0]))
	if err != nil {
		return err
	}
	if len(scn.Cyclic) == 0 {
		return fmt.Errorf("scenario %s has no cyclic frames to watch", scn.Name)
	}

	runner := container.NewRunner(scn)
	if err := runner.AttachAll(); err != nil {
		return err
	}

	sched := container.NewScheduler()
	for _, c := range scn.Cyclic {
		msg, err := c.Frame.Message()
		if err != nil {
			return err
		}
		if err := sched.Add(c.Source, runner.Node(c.Source), msg, c.EveryMs, c.Cron); err != nil {
			return err
		}
	}

	rec := container.Recorder()
	rec.Subscribe(trace.SinkFunc(func(ev trace.Event) {
		fmt.Println(rec.Render(ev))
	}))

	addr := cfg.Listen
	if watchListen != "" {
		addr = watchListen
	}

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Start(gctx) })
	g.Go(func() error { return container.Hub().Serve(gctx, addr) })

	fmt.Printf("Watching %s: %d cyclic frames, %d nodes, ws://%s/watch. Press Ctrl+C to stop.\n",
		scn.Name, sched.Len(), len(scn.Nodes), addr)

	if err := g.Wait(); err != nil && err != context.Canceled {
		fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
