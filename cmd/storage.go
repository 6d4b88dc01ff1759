package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/lukewaehner/KijayKolder-LinksHub/storage"

	"github.com/spf13/cobra"
)

var (
	storageBucket string
	storagePrefix string
	storageStats  bool
	storageDelete bool
)

var storageCmd = &cobra.Command{
	Use:     "storage",
	Aliases: []string{"minio"},
	Short:   "对象存储桶管理",
	Long:    `查看和管理 audio、videos、images 存储桶中的文件，支持列出文件、查看统计信息、按前缀删除等功能。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if storageDelete && storagePrefix == "" {
			return fmt.Errorf("删除操作需要指定目录前缀")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "对象存储: %s (%s)\n", cfg.MinioEndpoint, cfg.StorageDriver)

		store, err := openStore(cfg)
		if err != nil {
			return fmt.Errorf("无法连接到对象存储: %w", err)
		}

		buckets := storage.Buckets
		if storageBucket != "" {
			buckets = []string{storageBucket}
		}

		out := cmd.OutOrStdout()
		for _, bucket := range buckets {
			stats, objects, err := storage.Stats(ctx, store, bucket, storagePrefix)
			if err != nil {
				return fmt.Errorf("列出 %s 失败: %w", bucket, err)
			}

			if storageDelete {
				for _, obj := range objects {
					if err := store.Remove(ctx, bucket, obj.Key); err != nil {
						return fmt.Errorf("删除 %s/%s 失败: %w", bucket, obj.Key, err)
					}
				}
				fmt.Fprintf(out, "%s: 已删除 %d 个文件 (%s)\n", bucket, stats.TotalObjects, storage.FormatSize(stats.TotalSize))
				continue
			}

			fmt.Fprintf(out, "\n存储桶 %s: %d 个文件, 共 %s\n", bucket, stats.TotalObjects, storage.FormatSize(stats.TotalSize))
			if !stats.LastModified.IsZero() {
				fmt.Fprintf(out, "最后修改: %s\n", stats.LastModified.Format("2006-01-02 15:04:05"))
			}
			if !storageStats {
				printObjects(out, objects)
			}
		}
		return nil
	},
}

func printObjects(out io.Writer, objects []storage.ObjectInfo) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, obj := range objects {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", obj.Key, storage.FormatSize(obj.Size), obj.LastModified.Format("2006-01-02 15:04"))
	}
	tw.Flush()
}

func init() {
	rootCmd.AddCommand(storageCmd)

	// 添加命令行参数
	storageCmd.Flags().StringVarP(&storageBucket, "bucket", "b", "", "只操作指定的存储桶")
	storageCmd.Flags().StringVarP(&storagePrefix, "prefix", "p", "", "按前缀过滤文件或指定要删除的目录")
	storageCmd.Flags().BoolVarP(&storageStats, "stats", "s", false, "只显示存储桶统计信息")
	storageCmd.Flags().BoolVarP(&storageDelete, "delete", "d", false, "删除指定前缀下的所有文件")

	storageCmd.Example = `  # 列出所有存储桶的文件
  linkshub storage

  # 只看封面
  linkshub storage -b images -p "covers/"

  # 显示统计信息
  linkshub storage -s

  # 删除前缀下的所有文件
  linkshub storage -b images -d -p "covers/"`
}
