package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// errInvalidPlan is returned after the failure has been printed.
var errInvalidPlan = errors.New("plan failed validation")

func newValidateCmd() *cobra.Command {
	var (
		flags          biometricFlags
		explicit       nutrition.MacroTargets
		dietType       string
		maxCorrections int
	)

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a candidate plan file",
		Long: `Run the plan validator on a model response saved to a file.

Targets come from --protein/--calories/--carbs/--fat when --protein is set,
otherwise they are computed from the biometric flags. Use - to read stdin.
Prose around the JSON object is ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			targets := explicit
			if targets.ProteinG == 0 {
				if targets, err = flags.targets(); err != nil {
					return err
				}
			}

			dt := diet.DietType(dietType)
			switch dt {
			case diet.DietStandard, diet.DietVegetarian, diet.DietVegan, diet.DietKeto:
			default:
				return fmt.Errorf("unknown diet type: %s", dietType)
			}

			w := cmd.OutOrStdout()
			result, err := validatePlan(raw, targets, dt, maxCorrections)
			if err != nil {
				red.Fprint(w, "FAIL ")
				fmt.Fprintln(w, err)
				if msg := diet.UserMessage(err, "en"); msg != "" {
					fmt.Fprintln(w, faint.Sprint(msg))
				}
				return errInvalidPlan
			}

			var protein float64
			for _, m := range result.Meals {
				protein += m.Protein
				fmt.Fprintf(w, "  %s  %-18s %s\n",
					faint.Sprint(m.Time),
					m.Name,
					faint.Sprintf("%.0f kcal, %.1f g protein", m.Calories, m.Protein))
			}
			green.Fprint(w, "OK ")
			fmt.Fprintf(w, "%d meals, %.1f g protein (target %d g)", len(result.Meals), protein, targets.ProteinG)
			if result.Corrections > 0 {
				fmt.Fprintf(w, ", %d correction pass(es)", result.Corrections)
			}
			fmt.Fprintln(w)
			return nil
		},
	}

	flags.register(cmd)
	fs := cmd.Flags()
	fs.IntVar(&explicit.Calories, "calories", 0, "daily calorie target")
	fs.IntVar(&explicit.ProteinG, "protein", 0, "daily protein target in g")
	fs.IntVar(&explicit.CarbsG, "carbs", 0, "daily carbohydrate target in g")
	fs.IntVar(&explicit.FatG, "fat", 0, "daily fat target in g")
	fs.StringVar(&dietType, "diet", string(diet.DietStandard), "standard, vegetarian, vegan or keto")
	fs.IntVar(&maxCorrections, "max-corrections", diet.DefaultMaxCorrections, "protein correction passes")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}
	return raw, nil
}

func validatePlan(raw []byte, targets nutrition.MacroTargets, dt diet.DietType, maxCorrections int) (*diet.ValidationResult, error) {
	object, err := diet.ExtractJSONObject(string(raw))
	if err != nil {
		return nil, err
	}
	candidate, err := diet.ParseCandidate([]byte(object))
	if err != nil {
		return nil, err
	}

	v := diet.NewValidator(diet.ValidatorConfig{
		MaxCorrections: maxCorrections,
		Logger:         zerolog.Nop(),
	})
	return v.Validate(candidate, targets, dt)
}
