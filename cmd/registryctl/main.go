// registryctl — утилита оператора реестра документов:
// миграции, конфигурация тенантов, сверка, GC, осиротевшие blob.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/document-registry/internal/app"
	"github.com/bigkaa/goartstore/document-registry/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "registryctl",
		Short:         "Обслуживание реестра клинических документов",
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tenantCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(gcCmd())
	rootCmd.AddCommand(orphansCmd())
	rootCmd.AddCommand(verifyCmd())
	return rootCmd
}

// loadConfig загружает конфигурацию без JWKS и создаёт логгер в stderr,
// чтобы stdout оставался чистым для JSON-вывода.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadOffline()
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка конфигурации: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return cfg, logger, nil
}

// withApp собирает реестр, вызывает fn и освобождает ресурсы.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// printJSON выводит v с отступами.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
