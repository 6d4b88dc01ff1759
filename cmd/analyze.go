package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lukewaehner/KijayKolder-LinksHub/core/metadata"

	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "读取本地音频文件的标签并评估完整度",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		extracted, problems := metadata.Inspect(data)
		analysis := metadata.AnalyzeExtracted(extracted)

		missing := make([]string, 0, len(analysis.Missing))
		for _, f := range analysis.Missing {
			missing = append(missing, metadata.FieldDisplayName(f))
		}
		report := map[string]any{
			"file":         args[0],
			"format":       metadata.DetectFormat(data),
			"metadata":     extracted.Document(),
			"has_cover":    extracted.CoverArt != nil,
			"completeness": analysis.Completeness,
			"missing":      missing,
		}
		if len(problems) > 0 {
			msgs := make([]string, len(problems))
			for i, p := range problems {
				msgs[i] = p.Error()
			}
			report["problems"] = msgs
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}
