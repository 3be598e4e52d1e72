package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/pricing"
)

var (
	priceWeeks     int
	priceHours     int
	priceTeam      int
	priceTier      string
	priceSizeClass string
	pricePositions int
	priceFunding   string
	priceTech      []string
	priceNeeds     []string
)

// priceCmd estimates a price offline, without touching the store or any
// external service. Useful for checking rate-table changes.
var priceCmd = &cobra.Command{
	Use:   "price",
	Short: "Estimate a project price from explicit inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		table := pricing.DefaultTable()
		if cfg.Pricing.TablePath != "" {
			var err error
			table, err = pricing.LoadTable(cfg.Pricing.TablePath)
			if err != nil {
				return eris.Wrap(err, "load pricing table")
			}
		}

		candidate := model.CandidateEntity{
			SizeClass:     model.SizeClass(priceSizeClass),
			InferredNeeds: priceNeeds,
		}
		if pricePositions > 0 || priceFunding != "" || len(priceTech) > 0 {
			candidate.Intel = &model.MarketIntel{
				OpenPositions: pricePositions,
				FundingStage:  priceFunding,
				Technologies:  priceTech,
			}
		}

		breakdown, err := pricing.NewEngine(table).EstimatePrice(
			priceWeeks, priceHours, priceTeam, model.DifficultyTier(priceTier), candidate)
		if err != nil {
			return eris.Wrap(err, "estimate price")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(breakdown)
	},
}

func init() {
	priceCmd.Flags().IntVar(&priceWeeks, "weeks", 12, "project duration in weeks")
	priceCmd.Flags().IntVar(&priceHours, "hours", 8, "hours per week")
	priceCmd.Flags().IntVar(&priceTeam, "team", 4, "team size")
	priceCmd.Flags().StringVar(&priceTier, "tier", "standard", "difficulty tier (standard, advanced)")
	priceCmd.Flags().StringVar(&priceSizeClass, "size", "mid_market", "organization size class")
	priceCmd.Flags().IntVar(&pricePositions, "open-positions", 0, "open position count")
	priceCmd.Flags().StringVar(&priceFunding, "funding", "", "funding stage")
	priceCmd.Flags().StringSliceVar(&priceTech, "tech", nil, "technology list")
	priceCmd.Flags().StringSliceVar(&priceNeeds, "needs", nil, "inferred needs")
	rootCmd.AddCommand(priceCmd)
}
