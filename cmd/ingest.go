package cmd

import (
	"fmt"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/ingest"
	"github.com/lukewaehner/KijayKolder-LinksHub/core/upload"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "上传本地音频或视频文件",
	Long:  `把本地文件当作一次拖放上传处理：音频生成曲目并读取标签，视频生成未激活的背景视频。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		files, err := ingest.LoadFiles(args)
		if err != nil {
			return err
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		res := ingest.Ingest(ctx, a.uploads, files)
		printBatch(cmd, "tracks", res.Tracks)
		printBatch(cmd, "videos", res.Videos)
		if res.Tracks.Failed+res.Videos.Failed > 0 {
			return fmt.Errorf("%d file(s) failed", res.Tracks.Failed+res.Videos.Failed)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "监听目录并自动上传新文件",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		dir := cfg.WatchDir
		if len(args) == 1 {
			dir = args[0]
		}

		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		return ingest.NewWatcher(dir, a.uploads).Run(ctx)
	},
}

func printBatch(cmd *cobra.Command, label string, b upload.BatchResult) {
	if b.Accepted == 0 && len(b.Skipped) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d accepted, %d succeeded, %d failed\n", label, b.Accepted, b.Succeeded, b.Failed)
	for _, f := range b.Files {
		line := fmt.Sprintf("  %-40s %3d%%  %s", f.FileName, f.Percent, f.State)
		if f.Error != "" {
			line += "  " + f.Error
		}
		fmt.Fprintln(out, line)
	}
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)
}
