// Command bakeryctl runs maintenance tasks against the bakery database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jogardn/bakery-orders/internal/config"
	"github.com/jogardn/bakery-orders/internal/store"
	"github.com/jogardn/bakery-orders/internal/store/memory"
	"github.com/jogardn/bakery-orders/internal/store/postgres"
)

var (
	logger = newLogger()
	// openStore is replaced in tests.
	openStore = openConfiguredStore
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	l.SetLevel(logrus.WarnLevel)
	return l
}

var rootCmd = &cobra.Command{
	Use:   "bakeryctl",
	Short: "Bakery administration tool",
	Long: `bakeryctl manages accounts and inspects orders directly in the
bakery database configured by DATABASE_URL (or a .env file).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(makeAdminCmd, createAdminCmd, resetPasswordCmd, usersCmd, ordersCmd, eventsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openConfiguredStore(ctx context.Context) (store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if cfg.StoreDriver == "memory" {
		return memory.New(), nil
	}
	pg, err := postgres.Open(ctx, cfg.DatabaseURL, 3, logger)
	if err != nil {
		return nil, err
	}
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return pg, nil
}

// withStore opens the store for the duration of one command.
func withStore(fn func(ctx context.Context, st store.Store, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(ctx, st, cmd, args)
	}
}
