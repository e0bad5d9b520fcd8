package cmd

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-checkout/app/timer"
)

var timerCmd = &cobra.Command{
	Use:   "timer",
	Short: "Print the evergreen offer countdown",
	Long:  "Print the offer countdown once, or keep ticking with --worker until interrupted.",
	Run:   runTimer,
}

func init() {
	rootCmd.AddCommand(timerCmd)
}

func runTimer(cmd *cobra.Command, _ []string) {
	cfg := mustLoadConfig()

	store, cleanup, err := createAnchorStore(context.Background(), cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize offer timer store")
	}
	defer cleanup()

	offer, err := timer.New(store, timer.Config{Key: cfg.Timer.StorageKey, Cycle: cfg.Timer.Cycle})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create offer timer")
	}

	out := cmd.OutOrStdout()
	printCountdown := func(ctx context.Context) error {
		_, err := fmt.Fprintf(out, "Offer ends in %s\n", offer.Tick(ctx))
		return err
	}

	if workerMode {
		runWorker("offer_timer", cfg.Checkout.TimerTick, printCountdown)
		return
	}
	runJob("offer_timer", func() error { return printCountdown(context.Background()) })
}
