package cmd

import (
	"TrackLens/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动TrackLens服务器",
	Long:  `启动HTTP API服务：上传分析、曲目查询、搜索、统计以及WebSocket事件推送。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
