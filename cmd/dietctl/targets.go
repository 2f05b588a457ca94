package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

type targetsOutput struct {
	nutrition.MacroTargets
	BMI   float64         `json:"bmi"`
	Meals []diet.MealSlot `json:"meals"`
}

func newTargetsCmd() *cobra.Command {
	var (
		flags  biometricFlags
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "targets",
		Short: "Compute daily calorie and macro targets",
		Long: `Compute the daily targets and meal schedule for a set of biometrics.

Monday, Wednesday and Friday are variation days: calories move randomly
within 10%. Use --no-variation or --date to get stable output.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := flags.targets()
			if err != nil {
				return err
			}

			out := targetsOutput{
				MacroTargets: targets,
				BMI:          nutrition.BMI(flags.weight, flags.height),
				Meals:        diet.MealSlots(targets.ProteinG),
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			bold.Fprintln(w, "Daily targets")
			fmt.Fprintf(w, "  %-9s %s\n", "calories", green.Sprintf("%d kcal", out.Calories))
			fmt.Fprintf(w, "  %-9s %d g\n", "protein", out.ProteinG)
			fmt.Fprintf(w, "  %-9s %d g\n", "carbs", out.CarbsG)
			fmt.Fprintf(w, "  %-9s %d g\n", "fat", out.FatG)
			fmt.Fprintf(w, "  %-9s %s\n", "bmi", faint.Sprintf("%.1f", out.BMI))
			fmt.Fprintln(w)
			bold.Fprintln(w, "Meals")
			for _, slot := range out.Meals {
				fmt.Fprintf(w, "  %s  %-18s %s\n",
					faint.Sprint(slot.Time),
					slot.Name,
					faint.Sprintf("~%.0f g protein", slot.ProteinRatio*float64(out.ProteinG)))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
