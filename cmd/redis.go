package cmd

import (
	"context"
	"fmt"
	"time"

	"TrackLens/cache"
	"TrackLens/core/catalog"

	"github.com/spf13/cobra"
)

var redisCmd = &cobra.Command{
	Use:   "redis",
	Short: "Redis连接测试",
	Long:  `测试Redis连接是否成功，并对统计缓存做一次读写。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Redis配置: %s, DB: %d\n", cfg.RedisAddr(), cfg.RedisDB)

		// 连接Redis
		if err := cache.ConnectRedis(cfg); err != nil {
			return fmt.Errorf("无法连接到Redis: %w", err)
		}
		defer cache.CloseRedis()
		fmt.Println("Redis连接成功！")

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()

		// 检查统计缓存
		stats := cache.NewStatsCache(cache.RedisClient, cfg.StatsCacheTTL)
		cached, ok, err := stats.Get(ctx)
		if err != nil {
			return fmt.Errorf("读取统计缓存失败: %w", err)
		}
		if ok {
			fmt.Printf("统计缓存命中: %d 首曲目, 平均BPM %.2f\n", cached.TotalTracks, cached.AvgBPM)
			return nil
		}

		probe := catalog.ComputeStats(nil)
		if err := stats.Set(ctx, probe); err != nil {
			return fmt.Errorf("写入统计缓存失败: %w", err)
		}
		if err := stats.Invalidate(ctx); err != nil {
			return fmt.Errorf("清除统计缓存失败: %w", err)
		}
		fmt.Println("Redis基本操作测试成功！")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(redisCmd)
}
