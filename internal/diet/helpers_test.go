package diet_test

import (
	"github.com/nutriplan/nutriplan/internal/diet"
	"github.com/nutriplan/nutriplan/internal/nutrition"
)

func num(v float64) *diet.Number {
	n := diet.Number(v)
	return &n
}

func food(name, portion string, kcal, protein, carbs, fat float64) diet.CandidateFood {
	return diet.CandidateFood{
		Name:     name,
		Portion:  portion,
		Calories: num(kcal),
		Protein:  num(protein),
		Carbs:    num(carbs),
		Fat:      num(fat),
	}
}

func meal(name, at string, foods ...diet.CandidateFood) diet.CandidateMeal {
	return diet.CandidateMeal{Name: name, Time: at, Foods: foods}
}

// fourMealTargets has a protein target below the pre-workout threshold.
var fourMealTargets = nutrition.MacroTargets{Calories: 2000, ProteinG: 120, CarbsG: 230, FatG: 69}

// balancedPlan meets every protein floor and totals 120 g of protein.
func balancedPlan() *diet.CandidatePlan {
	return &diet.CandidatePlan{Meals: []diet.CandidateMeal{
		meal("Café da manhã", "07:00",
			food("Ovos mexidos", "3 unidades (150g)", 210, 18, 2, 15),
			food("Pão integral", "2 fatias (50g)", 120, 6, 22, 2),
			food("Iogurte natural", "170g", 100, 6, 8, 5),
		),
		meal("Almoço", "12:30",
			food("Peito de frango grelhado", "150g", 250, 35, 0, 6),
			food("Arroz integral", "1 xícara (160g)", 180, 4, 38, 1.5),
			food("Feijão carioca", "1 concha (100g)", 75, 3, 13, 0.5),
		),
		meal("Lanche da tarde", "16:00",
			food("Banana", "1 unidade", 105, 1, 27, 0.3),
			food("Whey protein", "1 scoop (30g)", 120, 11, 3, 1.5),
		),
		meal("Jantar", "20:00",
			food("Salmão assado", "120g", 250, 30, 0, 15),
			food("Batata doce", "200g", 172, 3, 40, 0.2),
			food("Brócolis", "1 xícara", 30, 3, 6, 0.3),
		),
	}}
}

// veganPlan is balancedPlan with plant-based foods only.
func veganPlan() *diet.CandidatePlan {
	return &diet.CandidatePlan{Meals: []diet.CandidateMeal{
		meal("Breakfast", "07:00",
			food("Tofu scramble", "200g", 290, 24, 4, 18),
			food("Aveia com leite de coco", "40g", 160, 6, 27, 3),
		),
		meal("Lunch", "12:30",
			food("Lentil stew", "300g", 350, 27, 60, 1.5),
			food("Tempeh", "100g", 190, 15, 9, 11),
		),
		meal("Afternoon Snack", "16:00",
			food("Peanut butter toast", "1 slice", 190, 8, 18, 10),
			food("Eggplant dip", "50g", 60, 4, 6, 3),
		),
		meal("Dinner", "20:00",
			food("Chickpea curry", "350g", 420, 36, 55, 12),
		),
	}}
}
