package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bigkaa/goartstore/edms-catalog/internal/config"
)

// env — конфигурация и логгер, загружаемые перед выполнением команды.
type env struct {
	cfg    *config.Config
	logger *slog.Logger
}

// newRootCmd собирает дерево команд edmsctl.
// Конфигурация читается из тех же переменных EC_*, что и у сервиса.
func newRootCmd() *cobra.Command {
	e := &env{}
	var verbose bool

	root := &cobra.Command{
		Use:   "edmsctl",
		Short: "Операторские команды EDMS Catalog",
		Long: `edmsctl выполняет операции EDMS Catalog без HTTP-сервиса:
получение содержимого документа из EDMS, построение миниатюры,
очистку кэша миниатюр, поиск по реестру и дописывание VIPs в аннотацию.

Конфигурация читается из переменных окружения EC_* (как у edms-catalog).

Примеры:
  edmsctl fetch 19661460 -o scan.tif
  edmsctl thumbnail 19661460
  edmsctl search --search "договор поставки" --from 2024-01-01
  edmsctl annotate 19661460 "Иванов И.И." "Петров П.П."
  edmsctl cache clear`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
			}
			if verbose {
				cfg.LogLevel = slog.LevelDebug
			}
			e.cfg = cfg
			e.logger = config.SetupLoggerTo(cfg, cmd.ErrOrStderr())
			return nil
		},
	}

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Подробное логирование (DEBUG)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newFetchCmd(e),
		newThumbnailCmd(e),
		newCacheCmd(e),
		newSearchCmd(e),
		newAnnotateCmd(e),
	)
	return root
}

// parseDocID разбирает номер документа из аргумента команды.
func parseDocID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный номер документа %q", arg)
	}
	return id, nil
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		return 1
	}
	return 0
}
