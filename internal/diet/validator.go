package diet

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/rs/zerolog"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// DefaultMaxCorrections is the number of corrective passes the validator
// may apply before giving up.
const DefaultMaxCorrections = 2

const (
	// A meal below this share of its protein floor is corrected.
	mealFloorTolerance = 0.8

	// Total protein must land within this relative band of the target.
	totalProteinTolerance = 0.20

	// Protein-bearing foods get at least this share of calories from protein.
	proteinDenseShare = 0.20

	// Lower bound for scaling a single food down.
	minFoodScale = 0.25
)

var hhmmPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ratioKeywords map normalized meal-name keywords to the share of the daily
// protein target the meal must carry. Checked in order.
var ratioKeywords = []struct {
	keywords []string
	ratio    float64
}{
	{[]string{"pre-workout", "pre workout", "preworkout", "pre-treino", "pre treino"}, 0.15},
	{[]string{"breakfast", "cafe da manha", "desjejum"}, 0.25},
	{[]string{"lunch", "almoco"}, 0.35},
	{[]string{"dinner", "supper", "jantar", "ceia"}, 0.25},
	{[]string{"snack", "lanche", "merenda"}, 0.10},
}

const defaultMealRatio = 0.10

// ProteinRatio returns the share of the daily protein target a meal with
// this name must provide.
func ProteinRatio(mealName string) float64 {
	n := Normalize(mealName)
	for _, r := range ratioKeywords {
		for _, kw := range r.keywords {
			if strings.Contains(n, kw) {
				return r.ratio
			}
		}
	}
	return defaultMealRatio
}

// ValidatorConfig holds validator settings.
type ValidatorConfig struct {
	// MaxCorrections bounds corrective passes. Default: 2
	MaxCorrections int

	Logger zerolog.Logger
}

// ValidationResult is a plan that passed every check.
type ValidationResult struct {
	Meals       []Meal
	Corrections int
}

// Validator checks candidate plans and applies bounded protein corrections.
// It is safe for concurrent use.
type Validator struct {
	validate       *validator.Validate
	maxCorrections int
	logger         zerolog.Logger
}

// NewValidator creates a validator.
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.MaxCorrections <= 0 {
		cfg.MaxCorrections = DefaultMaxCorrections
	}

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	_ = v.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
		return hhmmPattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})

	return &Validator{
		validate:       v,
		maxCorrections: cfg.MaxCorrections,
		logger:         cfg.Logger,
	}
}

// Validate checks a candidate against the targets and diet type. Structural
// and diet violations are reported as-is; protein shortfalls are corrected
// up to the configured number of passes.
func (v *Validator) Validate(c *CandidatePlan, targets nutrition.MacroTargets, diet DietType) (*ValidationResult, error) {
	if c == nil {
		return nil, &StructuralValidationError{Reason: "plan has no meals"}
	}
	if err := v.checkStructure(c, targets.ProteinG); err != nil {
		return nil, err
	}

	meals := c.toMeals()
	return v.validateMeals(meals, targets, diet, 0)
}

func (v *Validator) checkStructure(c *CandidatePlan, proteinTarget int) error {
	want := ExpectedMealCount(proteinTarget)
	if len(c.Meals) != want {
		return &StructuralValidationError{Reason: fmt.Sprintf("expected %d meals, got %d", want, len(c.Meals))}
	}

	for i, m := range c.Meals {
		if err := v.validate.Struct(m); err != nil {
			return structuralError(i, m.Name, err)
		}
	}
	return nil
}

func structuralError(index int, name string, err error) error {
	label := strings.TrimSpace(name)
	if label == "" {
		label = fmt.Sprintf("#%d", index+1)
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &StructuralValidationError{Meal: label, Reason: err.Error()}
	}

	fe := verrs[0]
	field := fe.Namespace()
	if _, rest, ok := strings.Cut(field, "."); ok {
		field = rest
	}

	var reason string
	switch fe.Tag() {
	case "required":
		reason = field + " is missing"
	case "notblank":
		reason = field + " must not be blank"
	case "hhmm":
		reason = field + " must be HH:MM"
	case "gte":
		reason = field + " must not be negative"
	case "min":
		reason = field + " must not be empty"
	default:
		reason = fmt.Sprintf("%s failed %q", field, fe.Tag())
	}
	return &StructuralValidationError{Meal: label, Reason: reason}
}

func (v *Validator) validateMeals(meals []Meal, targets nutrition.MacroTargets, diet DietType, pass int) (*ValidationResult, error) {
	if want := ExpectedMealCount(targets.ProteinG); len(meals) != want {
		return nil, &StructuralValidationError{Reason: fmt.Sprintf("expected %d meals, got %d", want, len(meals))}
	}

	if err := checkDiet(meals, diet); err != nil {
		return nil, err
	}

	canCorrect := pass < v.maxCorrections
	corrected := false
	target := float64(targets.ProteinG)

	for i := range meals {
		meal := &meals[i]
		floor := ProteinRatio(meal.Name) * target
		if meal.Protein >= floor*mealFloorTolerance {
			continue
		}
		if !canCorrect || !raiseMealProtein(meal, floor) {
			return nil, &ProteinTargetError{Meal: meal.Name, Actual: meal.Protein, Target: round1(floor)}
		}
		v.logger.Debug().
			Str("meal", meal.Name).
			Float64("floor", floor).
			Float64("protein", meal.Protein).
			Int("pass", pass).
			Msg("raised meal protein to floor")
		corrected = true
	}

	total := sumProtein(meals)
	lower, upper := target*(1-totalProteinTolerance), target*(1+totalProteinTolerance)
	if total >= lower && total <= upper {
		result := &ValidationResult{Meals: meals, Corrections: pass}
		if corrected {
			result.Corrections++
		}
		return result, nil
	}

	if !canCorrect || total <= 0 {
		return nil, &ProteinTargetError{Actual: total, Target: target, Lower: round1(lower), Upper: round1(upper)}
	}

	distributeProtein(meals, target-total, total)
	v.logger.Debug().
		Float64("before", total).
		Float64("after", sumProtein(meals)).
		Float64("target", target).
		Int("pass", pass).
		Msg("rebalanced plan protein")

	return v.validateMeals(meals, targets, diet, pass+1)
}

func checkDiet(meals []Meal, diet DietType) error {
	for _, m := range meals {
		for _, f := range m.Foods {
			if kw, ok := findBanned(diet, f.Name); ok {
				return &DietIncompatibilityError{Diet: diet, Meal: m.Name, Food: f.Name, Ingredient: kw}
			}
		}
	}
	return nil
}

// raiseMealProtein scales the meal's protein-bearing foods so the meal
// reaches floor grams of protein. It reports false when nothing in the meal
// carries protein.
func raiseMealProtein(meal *Meal, floor float64) bool {
	bearing := make([]bool, len(meal.Foods))
	var dense, other float64
	for i, f := range meal.Foods {
		if f.Protein > 0 && f.Protein*4 >= f.Calories*proteinDenseShare {
			bearing[i] = true
			dense += f.Protein
		} else {
			other += f.Protein
		}
	}
	if dense == 0 {
		dense, other = other, 0
		for i, f := range meal.Foods {
			bearing[i] = f.Protein > 0
		}
	}
	if dense == 0 {
		return false
	}

	factor := (floor - other) / dense
	for i := range meal.Foods {
		if bearing[i] {
			scaleFood(&meal.Foods[i], factor)
		}
	}
	meal.Recompute()
	return true
}

// distributeProtein spreads delta grams across meals in proportion to their
// protein by scaling each meal's highest-protein food.
func distributeProtein(meals []Meal, delta, total float64) {
	for i := range meals {
		meal := &meals[i]
		if meal.Protein <= 0 {
			continue
		}
		top := 0
		for j, f := range meal.Foods {
			if f.Protein > meal.Foods[top].Protein {
				top = j
			}
		}
		food := &meal.Foods[top]
		if food.Protein <= 0 {
			continue
		}

		share := delta * meal.Protein / total
		factor := math.Max((food.Protein+share)/food.Protein, minFoodScale)
		scaleFood(food, factor)
		meal.Recompute()
	}
}

func sumProtein(meals []Meal) float64 {
	var total float64
	for _, m := range meals {
		total += m.Protein
	}
	return round1(total)
}

func scaleFood(f *Food, factor float64) {
	f.Calories = round1(f.Calories * factor)
	f.Protein = round1(f.Protein * factor)
	f.Carbs = round1(f.Carbs * factor)
	f.Fat = round1(f.Fat * factor)
	f.Portion = ScalePortion(f.Portion, factor)
}

var quantityPattern = regexp.MustCompile(`(\d+(?:[.,]\d+)?)(?:/(\d+))?`)

// ScalePortion multiplies every quantity in a free-text portion, so
// "2 slices (50g)" scaled by 1.5 becomes "3 slices (75g)". Fractions such
// as "1/2" are scaled as a single value.
func ScalePortion(portion string, factor float64) string {
	return quantityPattern.ReplaceAllStringFunc(portion, func(q string) string {
		m := quantityPattern.FindStringSubmatch(q)
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			return q
		}
		if m[2] != "" {
			den, err := strconv.ParseFloat(m[2], 64)
			if err != nil || den == 0 {
				return q
			}
			v /= den
		}
		return formatQuantity(v * factor)
	})
}

func formatQuantity(v float64) string {
	if v >= 10 {
		return strconv.FormatFloat(math.Round(v), 'f', -1, 64)
	}
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64)
}
