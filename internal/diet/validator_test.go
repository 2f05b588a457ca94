package diet_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

func newValidator() *diet.Validator {
	return diet.NewValidator(diet.ValidatorConfig{Logger: zerolog.Nop()})
}

func TestValidate_AcceptsBalancedPlanUnchanged(t *testing.T) {
	result, err := newValidator().Validate(balancedPlan(), fourMealTargets, diet.DietStandard)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Corrections)
	require.Len(t, result.Meals, 4)
	assert.Equal(t, 30.0, result.Meals[0].Protein)
	assert.Equal(t, 42.0, result.Meals[1].Protein)
	assert.Equal(t, "3 unidades (150g)", result.Meals[0].Foods[0].Portion)
	assert.Equal(t, 18.0, result.Meals[0].Foods[0].Protein)
}

func TestValidate_RejectsWrongMealCountBeforeProteinChecks(t *testing.T) {
	plan := balancedPlan()
	plan.Meals = plan.Meals[:3]
	plan.Meals[0].Foods[0].Protein = num(0)

	_, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.Error(t, err)
	assert.ErrorIs(t, err, diet.ErrStructuralValidation)
	assert.NotErrorIs(t, err, diet.ErrProteinTarget)
	assert.Contains(t, err.Error(), "expected 4 meals, got 3")
}

func TestValidate_RequiresPreWorkoutMealForHighProtein(t *testing.T) {
	targets := nutrition.MacroTargets{Calories: 2661, ProteinG: 200, CarbsG: 265, FatG: 89}

	_, err := newValidator().Validate(balancedPlan(), targets, diet.DietStandard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 5 meals, got 4")
}

func TestValidate_StructuralFieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *diet.CandidatePlan)
		want   string
	}{
		{
			name:   "missing portion",
			mutate: func(p *diet.CandidatePlan) { p.Meals[1].Foods[2].Portion = "" },
			want:   `meal "Almoço": foods[2].portion is missing`,
		},
		{
			name:   "bad time",
			mutate: func(p *diet.CandidatePlan) { p.Meals[0].Time = "7h" },
			want:   "time must be HH:MM",
		},
		{
			name:   "negative calories",
			mutate: func(p *diet.CandidatePlan) { p.Meals[3].Foods[0].Calories = num(-5) },
			want:   "foods[0].calories must not be negative",
		},
		{
			name:   "missing protein",
			mutate: func(p *diet.CandidatePlan) { p.Meals[2].Foods[1].Protein = nil },
			want:   "foods[1].protein is missing",
		},
		{
			name:   "no foods",
			mutate: func(p *diet.CandidatePlan) { p.Meals[2].Foods = nil },
			want:   `meal "Lanche da tarde": foods`,
		},
		{
			name:   "unnamed meal",
			mutate: func(p *diet.CandidatePlan) { p.Meals[3].Name = "" },
			want:   `meal "#4": name is missing`,
		},
		{
			name:   "blank meal name",
			mutate: func(p *diet.CandidatePlan) { p.Meals[2].Name = "   " },
			want:   `meal "#3": name must not be blank`,
		},
		{
			name:   "blank food name",
			mutate: func(p *diet.CandidatePlan) { p.Meals[1].Foods[0].Name = "  " },
			want:   `meal "Almoço": foods[0].name must not be blank`,
		},
		{
			name:   "blank portion",
			mutate: func(p *diet.CandidatePlan) { p.Meals[0].Foods[1].Portion = "\t" },
			want:   "foods[1].portion must not be blank",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := balancedPlan()
			tt.mutate(plan)

			_, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
			require.Error(t, err)

			var structural *diet.StructuralValidationError
			require.ErrorAs(t, err, &structural)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_VeganRejectsChicken(t *testing.T) {
	plan := veganPlan()
	plan.Meals[1].Foods[1] = food("Frango desfiado", "100g", 165, 31, 0, 3.6)

	_, err := newValidator().Validate(plan, fourMealTargets, diet.DietVegan)
	require.Error(t, err)

	var incompatible *diet.DietIncompatibilityError
	require.ErrorAs(t, err, &incompatible)
	assert.Equal(t, "Lunch", incompatible.Meal)
	assert.Equal(t, "Frango desfiado", incompatible.Food)
	assert.Equal(t, "frango", incompatible.Ingredient)
}

func TestValidate_VeganAllowsPlantBasedLookalikes(t *testing.T) {
	result, err := newValidator().Validate(veganPlan(), fourMealTargets, diet.DietVegan)
	require.NoError(t, err)
	assert.Len(t, result.Meals, 4)
}

func TestValidate_VeganRejectsDairyAndHoney(t *testing.T) {
	for _, name := range []string{"Queijo minas", "Iogurte grego com mel", "OVOS cozidos", "Leite integral"} {
		plan := veganPlan()
		plan.Meals[0].Foods[1] = food(name, "100g", 150, 10, 5, 8)

		_, err := newValidator().Validate(plan, fourMealTargets, diet.DietVegan)
		assert.ErrorIs(t, err, diet.ErrDietIncompatible, name)
	}
}

func TestValidate_VegetarianAllowsEggsAndDairy(t *testing.T) {
	plan := veganPlan()
	plan.Meals[0].Foods[1] = food("Ovos cozidos com queijo", "2 unidades", 200, 16, 1, 14)

	_, err := newValidator().Validate(plan, fourMealTargets, diet.DietVegetarian)
	assert.NoError(t, err)
}

func TestValidate_MeatAndSeafoodRejectedByPlantDiets(t *testing.T) {
	names := []string{
		"Hambúrguer bovino", "Patinho moído", "Ham sandwich", "Meatballs", "Pato assado",
		"Picanha grelhada", "Costela no bafo", "Vitela ao molho", "Anchovas", "Truta assada",
		"Caranguejo", "Lobster roll", "Mexilhões ao vinho", "Ostras frescas",
	}
	for _, dt := range []diet.DietType{diet.DietVegan, diet.DietVegetarian} {
		for _, name := range names {
			t.Run(string(dt)+"/"+name, func(t *testing.T) {
				plan := veganPlan()
				plan.Meals[3].Foods = append(plan.Meals[3].Foods, food(name, "100g", 200, 20, 0, 12))

				_, err := newValidator().Validate(plan, fourMealTargets, dt)
				assert.ErrorIs(t, err, diet.ErrDietIncompatible)
			})
		}
	}
}

func TestValidate_EggsAndFermentedDairyByDiet(t *testing.T) {
	for _, name := range []string{"Omelete de claras", "Gema cozida", "Kefir", "Coalhada seca"} {
		t.Run(name, func(t *testing.T) {
			plan := veganPlan()
			plan.Meals[3].Foods = append(plan.Meals[3].Foods, food(name, "100g", 120, 10, 4, 6))

			_, err := newValidator().Validate(plan, fourMealTargets, diet.DietVegan)
			assert.ErrorIs(t, err, diet.ErrDietIncompatible)

			_, err = newValidator().Validate(plan, fourMealTargets, diet.DietVegetarian)
			assert.NoError(t, err)
		})
	}
}

func TestValidate_PlantBasedBurgersStayVegan(t *testing.T) {
	for _, name := range []string{"Hambúrguer de grão-de-bico", "Veggie burger", "Kefir de água", "Oyster mushroom stir-fry"} {
		t.Run(name, func(t *testing.T) {
			plan := veganPlan()
			plan.Meals[3].Foods = append(plan.Meals[3].Foods, food(name, "100g", 120, 6, 15, 3))

			_, err := newValidator().Validate(plan, fourMealTargets, diet.DietVegan)
			assert.NoError(t, err)
		})
	}
}

func TestValidate_RaisesMealBelowFloor(t *testing.T) {
	plan := balancedPlan()
	plan.Meals[0] = meal("Café da manhã", "07:00",
		food("Ovos mexidos", "2 unidades (100g)", 140, 12, 1, 10),
		food("Pão integral", "2 fatias (50g)", 120, 4, 22, 2),
	)

	result, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.NoError(t, err)

	breakfast := result.Meals[0]
	assert.Equal(t, 1, result.Corrections)
	assert.InDelta(t, 30, breakfast.Protein, 0.2)
	assert.Equal(t, "4.3 unidades (217g)", breakfast.Foods[0].Portion)
	assert.InDelta(t, 303.3, breakfast.Foods[0].Calories, 0.1)
	// The bread carries little protein and is left alone.
	assert.Equal(t, "2 fatias (50g)", breakfast.Foods[1].Portion)
	assert.Equal(t, 4.0, breakfast.Foods[1].Protein)
}

func TestValidate_CorrectsTotalShortfall(t *testing.T) {
	plan := balancedPlan()
	// 25 + 34 + 10 + 25 = 94 g: every meal above 80% of its floor, total 22% short.
	plan.Meals[0].Foods[0].Protein = num(13)
	plan.Meals[1].Foods[0].Protein = num(27)
	plan.Meals[2].Foods[1].Protein = num(9)
	plan.Meals[3].Foods[0].Protein = num(19)

	result, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.NoError(t, err)

	var total float64
	for _, m := range result.Meals {
		total += m.Protein
	}
	assert.Equal(t, 1, result.Corrections)
	assert.InDelta(t, 120, total, 1)
}

func TestValidate_ThirtyPercentShortLandsInBand(t *testing.T) {
	plan := &diet.CandidatePlan{Meals: []diet.CandidateMeal{
		meal("Breakfast", "07:00", food("Greek yogurt", "200g", 200, 21, 8, 8)),
		meal("Lunch", "12:30", food("Chicken breast", "120g", 200, 29.4, 0, 4)),
		meal("Snack", "16:00", food("Almonds", "30g", 170, 8.4, 6, 15)),
		meal("Dinner", "20:00", food("Cod fillet", "150g", 160, 25.2, 0, 2)),
	}}

	result, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.NoError(t, err)

	var total float64
	for _, m := range result.Meals {
		total += m.Protein
	}
	assert.GreaterOrEqual(t, total, 96.0)
	assert.LessOrEqual(t, total, 144.0)
	assert.LessOrEqual(t, result.Corrections, diet.DefaultMaxCorrections)
}

func TestValidate_GivesUpAfterMaxCorrections(t *testing.T) {
	plan := &diet.CandidatePlan{Meals: []diet.CandidateMeal{
		meal("Breakfast", "07:00", food("Protein shake", "10 scoops", 4000, 1200, 50, 20)),
		meal("Lunch", "12:30", food("Steak", "6kg", 9000, 1680, 0, 500)),
		meal("Snack", "16:00", food("Jerky", "2kg", 2000, 480, 20, 40)),
		meal("Dinner", "20:00", food("Tuna", "5kg", 6000, 1440, 0, 50)),
	}}

	_, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.Error(t, err)

	var proteinErr *diet.ProteinTargetError
	require.ErrorAs(t, err, &proteinErr)
	assert.Empty(t, proteinErr.Meal)
	// 4800 g scaled by a quarter on each of the two passes.
	assert.InDelta(t, 300, proteinErr.Actual, 0.5)
	assert.Equal(t, 120.0, proteinErr.Target)
	assert.Equal(t, 96.0, proteinErr.Lower)
	assert.Equal(t, 144.0, proteinErr.Upper)
}

func TestValidate_MealWithoutProteinCannotBeCorrected(t *testing.T) {
	plan := balancedPlan()
	plan.Meals[3] = meal("Jantar", "20:00", food("Salada verde", "1 prato", 40, 0, 8, 0))

	_, err := newValidator().Validate(plan, fourMealTargets, diet.DietStandard)
	require.Error(t, err)

	var proteinErr *diet.ProteinTargetError
	require.ErrorAs(t, err, &proteinErr)
	assert.Equal(t, "Jantar", proteinErr.Meal)
	assert.Equal(t, 30.0, proteinErr.Target)
}

func TestProteinRatio(t *testing.T) {
	assert.Equal(t, 0.25, diet.ProteinRatio("Café da Manhã"))
	assert.Equal(t, 0.35, diet.ProteinRatio("ALMOÇO"))
	assert.Equal(t, 0.15, diet.ProteinRatio("Pre-Workout Snack"))
	assert.Equal(t, 0.15, diet.ProteinRatio("Pré-treino"))
	assert.Equal(t, 0.10, diet.ProteinRatio("Lanche da tarde"))
	assert.Equal(t, 0.25, diet.ProteinRatio("Jantar"))
	assert.Equal(t, 0.10, diet.ProteinRatio("Brunch"))
}

func TestScalePortion(t *testing.T) {
	assert.Equal(t, "3 slices (75g)", diet.ScalePortion("2 slices (50g)", 1.5))
	assert.Equal(t, "0.8 xícara", diet.ScalePortion("1/2 xícara", 1.5))
	assert.Equal(t, "188g", diet.ScalePortion("125,5g", 1.5))
	assert.Equal(t, "a pinch", diet.ScalePortion("a pinch", 2))
}
