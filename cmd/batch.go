package main

import (
	"encoding/json"
	"os"
	"sync/atomic"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coursebridge/proposal-cli/internal/model"
)

var (
	batchCourseIDs   []string
	batchPrincipalID string
	batchIndustries  []string
	batchCount       int
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run proposal generation for several courses",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		concurrency := batchConcurrency
		if concurrency <= 0 {
			concurrency = 2
		}

		zap.L().Info("batch started",
			zap.Int("courses", len(batchCourseIDs)),
			zap.Int("concurrency", concurrency))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var succeeded, failed atomic.Int64
		results := make([]*model.RunResult, len(batchCourseIDs))

		for i, courseID := range batchCourseIDs {
			g.Go(func() error {
				log := zap.L().With(zap.String("course_id", courseID))

				result, err := env.Orchestrator.Run(gctx, model.RunRequest{
					CourseID:       courseID,
					PrincipalID:    batchPrincipalID,
					Industries:     batchIndustries,
					CandidateCount: batchCount,
				})
				results[i] = result
				if err != nil {
					failed.Add(1)
					log.Error("run failed", zap.Error(err))
					return nil // one course's failure never aborts the batch
				}

				succeeded.Add(1)
				log.Info("run complete",
					zap.Int("projects", len(result.ProjectIDs)),
					zap.Bool("using_real_data", result.UsingRealData))
				return nil
			})
		}
		g.Wait() //nolint:errcheck

		zap.L().Info("batch finished",
			zap.Int64("succeeded", succeeded.Load()),
			zap.Int64("failed", failed.Load()))

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(results) //nolint:errcheck
		return nil
	},
}

func init() {
	batchCmd.Flags().StringSliceVar(&batchCourseIDs, "courses", nil, "course IDs (required)")
	batchCmd.Flags().StringVar(&batchPrincipalID, "principal", "", "authenticated principal ID (required)")
	batchCmd.Flags().StringSliceVar(&batchIndustries, "industries", nil, "requested industries")
	batchCmd.Flags().IntVar(&batchCount, "count", 3, "candidates per course")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 2, "courses processed in parallel")
	batchCmd.MarkFlagRequired("courses")   //nolint:errcheck
	batchCmd.MarkFlagRequired("principal") //nolint:errcheck
	rootCmd.AddCommand(batchCmd)
}
