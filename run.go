package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lansync/lansyncd/internal/config"
	"github.com/lansync/lansyncd/internal/daemon"
	"github.com/lansync/lansyncd/internal/peerid"
	"github.com/lansync/lansyncd/internal/store"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the sync daemon in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd)
		},
	}
}

func runDaemon(cmd *cobra.Command) error {
	cc := mustCLIContext(cmd.Context())

	pidPath := config.DefaultPIDPath()

	cleanupPID, err := writePIDFile(pidPath)
	if err != nil {
		return err
	}
	defer cleanupPID()

	localID, err := peerid.LoadOrCreate(config.DefaultDeviceIDPath())
	if err != nil {
		return fmt.Errorf("loading peer identity: %w", err)
	}

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	st, err := store.NewSQLiteStore(ctx, config.DefaultStorePath(), cc.Logger)
	if err != nil {
		return fmt.Errorf("opening entry store: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cc.Cfg.Network.ListenPort))
	if err != nil {
		st.Close()

		return fmt.Errorf("binding transport listener: %w", err)
	}

	cfgPath := cc.CfgPath

	sync, err := daemon.New(daemon.Options{
		Config:      cc.Cfg,
		LocalID:     localID,
		Store:       st,
		Listener:    ln,
		ControlAddr: cc.Cfg.Network.ControlAddr,
		ConfigPath:  cfgPath,
		LoadConfig:  func() (*config.Config, error) { return config.Load(cfgPath, cc.Logger) },
		Logger:      cc.Logger,
	})
	if err != nil {
		st.Close()

		return err
	}

	sighupCh := sighupChannel()
	defer signal.Stop(sighupCh)

	go watchForReload(ctx, sync, sighupCh, cc.Logger)

	cc.Statusf("lansyncd: peer %s listening on %s, control endpoint %s\n", localID, sync.ListenAddr(), cc.Cfg.Network.ControlAddr)

	runErr := sync.Run(ctx)

	if closeErr := sync.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}

	return runErr
}

// watchForReload applies a config reload every time SIGHUP arrives, until
// ctx is cancelled. A reload error is logged but never fatal — the daemon
// keeps running on the last-known-good config.
func watchForReload(ctx context.Context, sync *daemon.Synchronizer, sighupCh <-chan os.Signal, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sighupCh:
			logger.Info("received SIGHUP, reloading config")

			if err := sync.Reload(ctx); err != nil {
				logger.Warn("config reload failed", slog.Any("error", err))
			}
		}
	}
}
