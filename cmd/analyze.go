package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"TrackLens/core/analyzer"
	"TrackLens/server"

	"github.com/spf13/cobra"
)

var (
	analyzeNoYAMNet bool
	analyzeNoOpenL3 bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>...",
	Short: "分析本地音频文件并输出JSON",
	Long:  `对本地音频文件执行完整分析（速度、调性、乐器、情绪），以JSON打印结果，不写入数据库。`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		an := server.NewAnalyzer(cfg)
		opts := analyzer.Options{UseYAMNet: !analyzeNoYAMNet, UseOpenL3: !analyzeNoOpenL3}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		failed := 0
		for _, path := range args {
			track, err := an.AnalyzeFile(cmd.Context(), path, opts)
			if err != nil {
				failed++
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				continue
			}
			if err := enc.Encode(track); err != nil {
				return err
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d files failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeNoYAMNet, "no-yamnet", false, "disable the YAMNet instrument classifier")
	analyzeCmd.Flags().BoolVar(&analyzeNoOpenL3, "no-openl3", false, "disable the OpenL3 embedding pass")
	rootCmd.AddCommand(analyzeCmd)
}
