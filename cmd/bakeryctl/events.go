package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jogardn/bakery-orders/internal/config"
	"github.com/jogardn/bakery-orders/internal/events"
	"github.com/jogardn/bakery-orders/internal/notify"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail order and review events from Kafka",
	Long: `events joins the bakery event topics with a throwaway consumer group
and prints every event published from now on. Stop it with Ctrl-C.`,
	Args: cobra.NoArgs,
	RunE: runEvents,
}

func runEvents(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is not set")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group := fmt.Sprintf("%s-tail-%s", cfg.KafkaTopic, uuid.NewString())
	relay, err := events.NewRelay(cfg.KafkaBrokers, group, cfg.KafkaTopic, eventPrinter{w: cmd.OutOrStdout()}, logger)
	if err != nil {
		return err
	}
	defer relay.Close()

	logger.WithFields(logrus.Fields{"brokers": cfg.KafkaBrokers, "prefix": cfg.KafkaTopic}).Info("Tailing events")
	if err := relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type eventPrinter struct{ w io.Writer }

func (p eventPrinter) HandleEvent(e events.Event) {
	fmt.Fprintln(p.w, formatEvent(e))
}

func formatEvent(e events.Event) string {
	at := e.OccurredAt.UTC().Format("2006-01-02 15:04:05")
	switch {
	case e.OrderID != "":
		line := fmt.Sprintf("%s  %-24s order=%s status=%s", at, e.Type, e.OrderID, e.Status)
		if e.TotalCents > 0 {
			line += " total=" + notify.FormatCents(e.TotalCents)
		}
		return line
	case e.ReviewID != "":
		return fmt.Sprintf("%s  %-24s review=%s", at, e.Type, e.ReviewID)
	}
	return fmt.Sprintf("%s  %s", at, e.Type)
}
