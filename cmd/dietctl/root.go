package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

var (
	green = color.New(color.FgGreen, color.Bold)
	red   = color.New(color.FgRed, color.Bold)
	faint = color.New(color.Faint)
	bold  = color.New(color.Bold)
)

func newRootCmd() *cobra.Command {
	var noColor bool

	root := &cobra.Command{
		Use:   "dietctl",
		Short: "Inspect NutriPlan targets and candidate plans",
		Long: `dietctl runs the NutriPlan nutrition rules without a server.

EXAMPLES:

  dietctl targets --weight 70 --height 175 --age 30 --gender male
  dietctl targets --weight 62 --height 165 --age 28 --gender f --goal loss --json
  dietctl validate plan.json --weight 70 --height 175 --age 30 --gender male --diet vegetarian`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable coloured output")

	root.AddCommand(newTargetsCmd(), newValidateCmd())
	return root
}

// biometricFlags collects calculator input from flags.
type biometricFlags struct {
	weight       float64
	height       float64
	age          int
	gender       string
	activity     string
	goal         string
	targetWeight float64
	targetWeeks  int
	lifeContext  string
	date         string
	noVariation  bool
}

func (f *biometricFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.Float64Var(&f.weight, "weight", 0, "body weight in kg")
	fs.Float64Var(&f.height, "height", 0, "height in cm")
	fs.IntVar(&f.age, "age", 0, "age in years")
	fs.StringVar(&f.gender, "gender", "", "male or female")
	fs.StringVar(&f.activity, "activity", string(nutrition.ActivityModerate), "sedentary, light, moderate, active or very_active")
	fs.StringVar(&f.goal, "goal", string(nutrition.GoalMaintenance), "loss, gain or maintenance")
	fs.Float64Var(&f.targetWeight, "target-weight", 0, "goal weight in kg")
	fs.IntVar(&f.targetWeeks, "target-weeks", 0, "weeks to reach the goal weight")
	fs.StringVar(&f.lifeContext, "life-context", "", "pregnancy or lactation")
	fs.StringVar(&f.date, "date", "", "evaluate as of this date (YYYY-MM-DD); default today")
	fs.BoolVar(&f.noVariation, "no-variation", false, "disable calorie variation days")
}

func (f *biometricFlags) biometrics() (nutrition.Biometrics, error) {
	b := nutrition.Biometrics{
		WeightKg:    f.weight,
		HeightCm:    f.height,
		Age:         f.age,
		Gender:      nutrition.ParseGender(f.gender),
		Activity:    nutrition.ActivityLevel(f.activity),
		Goal:        nutrition.Goal(f.goal),
		LifeContext: nutrition.LifeContext(f.lifeContext),
	}
	if f.gender != "" && b.Gender == "" {
		return b, fmt.Errorf("unknown gender: %s", f.gender)
	}
	if f.targetWeight > 0 {
		tw := f.targetWeight
		b.TargetWeightKg = &tw
	}
	if f.targetWeeks > 0 {
		weeks := f.targetWeeks
		b.TargetWeeks = &weeks
	}
	return b, nil
}

func (f *biometricFlags) calculator() (*nutrition.Calculator, error) {
	var opts []nutrition.Option
	if f.noVariation {
		opts = append(opts, nutrition.WithoutVariation())
	}
	if f.date != "" {
		day, err := time.ParseInLocation(time.DateOnly, f.date, time.Local)
		if err != nil {
			return nil, fmt.Errorf("invalid --date: %w", err)
		}
		opts = append(opts, nutrition.WithClock(func() time.Time { return day.Add(12 * time.Hour) }))
	}
	return nutrition.NewCalculator(opts...), nil
}

func (f *biometricFlags) targets() (nutrition.MacroTargets, error) {
	b, err := f.biometrics()
	if err != nil {
		return nutrition.MacroTargets{}, err
	}
	calc, err := f.calculator()
	if err != nil {
		return nutrition.MacroTargets{}, err
	}

	targets, err := calc.Calculate(b)
	var incomplete *nutrition.IncompleteProfileError
	if errors.As(err, &incomplete) {
		return nutrition.MacroTargets{}, fmt.Errorf("missing flags for: %v", incomplete.Missing)
	}
	return targets, err
}
