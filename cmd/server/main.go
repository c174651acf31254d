package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "lockerkiosk/internal/adapter/http"
	"lockerkiosk/internal/config"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var errOpenAllIncomplete = errors.New("open-all did not open every locker")

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			hlog.Errorf("%v", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "locker-kiosk",
		Short:         "Card-operated locker kiosk: assigns lockers to cards and drives the lock controller",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), loader, cfg)
		},
	}
	config.RegisterFlags(cmd.PersistentFlags())
	cmd.AddCommand(newOpenAllCommand())
	return cmd
}

func newOpenAllCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "open-all",
		Short: "Open every locker once, in ascending order, without touching assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			k, err := build(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer k.close()

			rep, err := k.bulk.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened %d/%d lockers", len(rep.Opened), rep.Attempted)
			if len(rep.Failed) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), ", failed: %v", rep.Failed)
			}
			if rep.Cancelled {
				fmt.Fprint(cmd.OutOrStdout(), " (cancelled)")
			}
			fmt.Fprintln(cmd.OutOrStdout())
			if len(rep.Failed) > 0 || rep.Cancelled {
				return errOpenAllIncomplete
			}
			return nil
		},
	}
}

func loadConfig(cmd *cobra.Command) (*config.Loader, config.Config, error) {
	loader, err := config.NewLoader(cmd.Flags())
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, config.Config{}, err
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	hlog.SetLevel(level)
	return loader, cfg, nil
}

func serve(ctx context.Context, loader *config.Loader, cfg config.Config) error {
	k, err := build(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer k.close()

	loader.Watch(func(next config.Config) {
		k.actuator.Update(actuatorSettings(next))
		if level, err := config.ParseLevel(next.LogLevel); err == nil {
			hlog.SetLevel(level)
		}
	})

	k.emitter.Emit(ctx, locker.AuditSystem, 0, "", fmt.Sprintf("service started: %d lockers, %d assigned", cfg.Lockers, len(k.store.Snapshot())))
	defer k.emitter.Emit(context.WithoutCancel(ctx), locker.AuditSystem, 0, "", "service stopped")

	h := server.Default(server.WithHostPorts(cfg.Addr()))
	httpadapter.Handler{
		IntakeUC:   k.intake,
		BoardUC:    k.board,
		AuditUC:    k.auditUC,
		Kiosk:      k.engine,
		Admin:      k.engine,
		Bulk:       k.bulk,
		Settings:   settingsApplier{loader: loader, actuator: k.actuator},
		AdminToken: cfg.AdminToken,
		CORSOrigin: cfg.CORSOrigin,
		KPI:        k.kpi,
		Metrics:    k.prom.Handler(),
	}.RegisterRoutes(h)

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run() }()
	hlog.Infof("locker kiosk listening on %s (%d lockers, store=%s)", cfg.Addr(), cfg.Lockers, cfg.Store)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		hlog.Warnf("shutdown: %v", err)
	}
	return nil
}
