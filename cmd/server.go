package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/ingest"
	"github.com/lukewaehner/KijayKolder-LinksHub/logger"
	"github.com/lukewaehner/KijayKolder-LinksHub/server"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveWatch bool

var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "启动LinksHub服务器",
	Long:    `启动HTTP服务器，提供曲目和背景视频目录、管理接口以及实时变更推送。`,
	RunE:    runServe,
}

func init() {
	serverCmd.Flags().BoolVarP(&serveWatch, "watch", "w", false, "also ingest files dropped into WATCH_DIR")
	rootCmd.AddCommand(serverCmd)
}

// uploadRetention is how long finished uploads stay visible in progress
// snapshots.
const uploadRetention = time.Hour

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	g, ctx := errgroup.WithContext(ctx)

	srv := server.New(cfg.HTTPAddr, a.handler())
	g.Go(func() error { return srv.Run(ctx) })

	if a.broker != nil {
		g.Go(func() error { return a.broker.Relay(ctx, a.hub) })
	}

	if serveWatch {
		w := ingest.NewWatcher(cfg.WatchDir, a.uploads)
		g.Go(func() error { return w.Run(ctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := a.uploads.Progress().Prune(time.Now().Add(-uploadRetention)); n > 0 {
					logger.Debug("pruned finished uploads", logger.Int("count", n))
				}
			}
		}
	})

	logger.Info("LinksHub started",
		logger.String("addr", cfg.HTTPAddr),
		logger.String("public_url", cfg.PublicBaseURL),
		logger.Bool("watch", serveWatch))
	return g.Wait()
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
