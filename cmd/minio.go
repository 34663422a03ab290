package cmd

import (
	"fmt"

	"TrackLens/storage"

	"github.com/spf13/cobra"
)

var minioPrefix string

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO归档检查",
	Long:  `连接MinIO，确认归档存储桶存在，并统计已归档的原始上传文件。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		store, err := storage.NewMinioStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("无法连接到MinIO: %w", err)
		}
		fmt.Println("MinIO连接成功！")

		stats, err := store.Stats(cmd.Context(), minioPrefix)
		if err != nil {
			return err
		}
		fmt.Printf("前缀 %q: %d 个对象, 共 %.2f MB", minioPrefix, stats.TotalObjects, float64(stats.TotalSize)/(1<<20))
		if stats.TotalObjects > 0 {
			fmt.Printf(", 最近更新 %s", stats.LastModified.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		return nil
	},
}

func init() {
	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "tracks/", "object prefix to summarise")
	rootCmd.AddCommand(minioCmd)
}
