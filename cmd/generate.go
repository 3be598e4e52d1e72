package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/coursebridge/proposal-cli/internal/model"
)

var (
	genCourseID    string
	genPrincipalID string
	genIndustries  []string
	genCount       int
	genBatchID     string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run proposal generation for a course",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Orchestrator.Run(ctx, model.RunRequest{
			CourseID:          genCourseID,
			PrincipalID:       genPrincipalID,
			Industries:        genIndustries,
			CandidateCount:    genCount,
			EnrichmentBatchID: genBatchID,
		})
		if result != nil {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			enc.Encode(result) //nolint:errcheck
		}
		return err
	},
}

func init() {
	generateCmd.Flags().StringVar(&genCourseID, "course", "", "course ID (required)")
	generateCmd.Flags().StringVar(&genPrincipalID, "principal", "", "authenticated principal ID (required)")
	generateCmd.Flags().StringSliceVar(&genIndustries, "industries", nil, "requested industries")
	generateCmd.Flags().IntVar(&genCount, "count", 3, "number of candidates to source")
	generateCmd.Flags().StringVar(&genBatchID, "enrichment-batch", "", "prior enrichment batch ID")
	generateCmd.MarkFlagRequired("course")    //nolint:errcheck
	generateCmd.MarkFlagRequired("principal") //nolint:errcheck
	rootCmd.AddCommand(generateCmd)
}
