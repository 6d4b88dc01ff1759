package storage

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	Bucket       string
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
}

// Stats walks bucket (optionally under prefix) and totals what it finds.
func Stats(ctx context.Context, store Store, bucket, prefix string) (BucketStats, []ObjectInfo, error) {
	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return BucketStats{}, nil, err
	}
	stats := BucketStats{Bucket: bucket}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
	}
	return stats, objects, nil
}

// FormatSize renders a byte count with a binary unit.
func FormatSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
