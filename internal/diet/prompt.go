package diet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nutriplan/nutriplan/internal/nutrition"
)

// SystemPrompt fixes the model's role and output contract.
const SystemPrompt = `You are a registered nutritionist who writes practical daily meal plans.
Use foods that are easy to find in Brazilian supermarkets and give portions in household or metric units.
Respond with exactly one JSON object and nothing else: no markdown, no commentary.`

const outputFormat = `{
  "meals": [
    {
      "name": "Breakfast",
      "time": "07:00",
      "foods": [
        {
          "name": "Scrambled eggs",
          "portion": "2 units (100g)",
          "calories": 155,
          "protein": 13,
          "carbs": 1.1,
          "fat": 11,
          "alternatives": [
            {"name": "Greek yogurt", "portion": "170g", "calories": 100, "protein": 17, "carbs": 6, "fat": 0.7}
          ]
        }
      ]
    }
  ]
}`

// DefaultMaxFavorites is how many saved meals are offered to the model.
const DefaultMaxFavorites = 3

// Prompt is the rendered request for the generation model.
type Prompt struct {
	System string
	User   string
}

// PromptInput is everything the prompt is rendered from.
type PromptInput struct {
	Targets       nutrition.MacroTargets
	Biometrics    nutrition.Biometrics
	DietType      DietType
	Budget        BudgetTier
	Allergies     []string
	FoodScores    map[string]int
	FavoriteMeals []Meal
	MaxFavorites  int

	// Feedback explains why the previous attempt was rejected.
	Feedback string
}

type scoredFood struct {
	name  string
	score int
}

// BuildPrompt renders the generation prompt.
func BuildPrompt(in PromptInput) Prompt {
	var b strings.Builder

	writeProfile(&b, in.Biometrics)
	writeTargets(&b, in.Targets, in.DietType)
	writeSchedule(&b, in.Targets.ProteinG)
	writePreferences(&b, in.Allergies, in.FoodScores)
	writeDietRules(&b, in.DietType)
	writeBudget(&b, in.Budget)
	if in.Biometrics.LifeContext.Maternity() {
		writeMaternity(&b, in.Biometrics.LifeContext)
	}
	if in.Feedback != "" {
		b.WriteString("PREVIOUS ATTEMPT REJECTED\n")
		fmt.Fprintf(&b, "- %s\n- Fix this problem in the new plan.\n\n", in.Feedback)
	}
	writeFavorites(&b, in.FavoriteMeals, in.MaxFavorites)

	b.WriteString("OUTPUT FORMAT\n")
	b.WriteString("Return a JSON object with this shape. Numbers are per portion; calories in kcal, macros in grams.\n")
	b.WriteString(outputFormat)
	b.WriteString("\n")

	return Prompt{System: SystemPrompt, User: b.String()}
}

func writeProfile(b *strings.Builder, bio nutrition.Biometrics) {
	b.WriteString("PROFILE\n")
	fmt.Fprintf(b, "- Sex: %s, age %d\n", nutrition.ParseGender(string(bio.Gender)), bio.Age)
	fmt.Fprintf(b, "- Weight %.1f kg, height %.0f cm\n", bio.WeightKg, bio.HeightCm)
	if bio.Activity != "" {
		fmt.Fprintf(b, "- Activity level: %s\n", bio.Activity)
	}
	if bio.Goal != "" {
		fmt.Fprintf(b, "- Goal: %s\n", bio.Goal)
	}
	b.WriteString("\n")
}

// ketoCarbCeilingG caps daily carbohydrates on a ketogenic plan.
const ketoCarbCeilingG = 30

func writeTargets(b *strings.Builder, t nutrition.MacroTargets, diet DietType) {
	b.WriteString("DAILY TARGETS\n")
	fmt.Fprintf(b, "- Calories: %d kcal\n", t.Calories)
	fmt.Fprintf(b, "- Protein: %d g\n", t.ProteinG)
	if diet == DietKeto {
		t = ketoTargets(t)
		fmt.Fprintf(b, "- Carbohydrates: at most %d g\n", t.CarbsG)
	} else {
		fmt.Fprintf(b, "- Carbohydrates: %d g\n", t.CarbsG)
	}
	fmt.Fprintf(b, "- Fat: %d g\n", t.FatG)
	b.WriteString("The sum of all meals must match these targets within 5%.\n\n")
}

// ketoTargets keeps calories and protein, caps carbohydrates and gives the
// remaining calories to fat.
func ketoTargets(t nutrition.MacroTargets) nutrition.MacroTargets {
	t.CarbsG = min(t.CarbsG, ketoCarbCeilingG)
	fatKcal := t.Calories - 4*t.ProteinG - 4*t.CarbsG
	t.FatG = max(fatKcal, 0) / 9
	return t
}

func writeSchedule(b *strings.Builder, proteinTarget int) {
	slots := MealSlots(proteinTarget)
	fmt.Fprintf(b, "MEAL SCHEDULE (exactly %d meals, in this order)\n", len(slots))
	for _, s := range slots {
		fmt.Fprintf(b, "- %s at %s: at least %.0f g protein\n", s.Name, s.Time, s.ProteinRatio*float64(proteinTarget))
	}
	b.WriteString("\n")
}

func writePreferences(b *strings.Builder, allergies []string, scores map[string]int) {
	if len(allergies) > 0 {
		b.WriteString("ALLERGIES (never use, including as an ingredient)\n")
		for _, a := range allergies {
			fmt.Fprintf(b, "- %s\n", a)
		}
		b.WriteString("\n")
	}

	var likes, dislikes []scoredFood
	for name, score := range scores {
		switch {
		case score > 0:
			likes = append(likes, scoredFood{name, score})
		case score < 0:
			dislikes = append(dislikes, scoredFood{name, score})
		}
	}
	sort.Slice(likes, func(i, j int) bool {
		if likes[i].score != likes[j].score {
			return likes[i].score > likes[j].score
		}
		return likes[i].name < likes[j].name
	})
	sort.Slice(dislikes, func(i, j int) bool {
		if dislikes[i].score != dislikes[j].score {
			return dislikes[i].score < dislikes[j].score
		}
		return dislikes[i].name < dislikes[j].name
	})

	if len(likes) > 0 {
		b.WriteString("FOODS THE USER LIKES (prefer these, most liked first)\n")
		for _, f := range likes {
			fmt.Fprintf(b, "- %s\n", f.name)
		}
		b.WriteString("\n")
	}
	if len(dislikes) > 0 {
		b.WriteString("FOODS THE USER DISLIKES (avoid these, most disliked first)\n")
		for _, f := range dislikes {
			fmt.Fprintf(b, "- %s\n", f.name)
		}
		b.WriteString("\n")
	}
}

func writeDietRules(b *strings.Builder, diet DietType) {
	switch diet {
	case DietVegan:
		b.WriteString("DIET: VEGAN (hard rule)\n")
		b.WriteString("- No animal products of any kind. Banned: " + strings.Join(BannedIngredients(DietVegan), ", ") + ".\n")
		b.WriteString("- Get protein from tofu, tempeh, seitan, lentils, chickpeas, beans, edamame and pea protein.\n")
		b.WriteString("- Replace milk with soy or oat milk, yogurt with coconut yogurt, eggs with tofu scramble, honey with agave.\n\n")
	case DietVegetarian:
		b.WriteString("DIET: VEGETARIAN (hard rule)\n")
		b.WriteString("- No meat, poultry or seafood. Banned: " + strings.Join(BannedIngredients(DietVegetarian), ", ") + ".\n")
		b.WriteString("- Eggs and dairy are allowed.\n\n")
	case DietKeto:
		b.WriteString("DIET: KETOGENIC (hard rule)\n")
		fmt.Fprintf(b, "- Total carbohydrates must not exceed %d g for the whole day.\n", ketoCarbCeilingG)
		b.WriteString("- Calorie share: 70% fat, 20% protein, 10% carbohydrates.\n")
		b.WriteString("- No bread, rice, pasta, potatoes, sugar or fruit juice.\n\n")
	}
}

func writeBudget(b *strings.Builder, tier BudgetTier) {
	switch tier {
	case BudgetEconomic:
		b.WriteString("BUDGET: ECONOMIC\n- Prefer rice, beans, eggs, chicken, seasonal vegetables and bananas. Avoid imported or premium items.\n\n")
	case BudgetModerate:
		b.WriteString("BUDGET: MODERATE\n- Everyday supermarket items; occasional fish or nuts are fine.\n\n")
	case BudgetPremium:
		b.WriteString("BUDGET: PREMIUM\n- Cost is not a constraint; salmon, berries, nuts and specialty products are fine.\n\n")
	}
}

func writeMaternity(b *strings.Builder, lc nutrition.LifeContext) {
	fmt.Fprintf(b, "MATERNITY (%s)\n", lc)
	b.WriteString("- Include folate, iron, calcium and omega-3 sources every day.\n")
	b.WriteString("- No raw or undercooked meat, fish or eggs, no unpasteurized dairy, no high-mercury fish, no alcohol.\n")
	b.WriteString("- Limit caffeine to one cup of coffee a day.\n\n")
}

func writeFavorites(b *strings.Builder, favorites []Meal, limit int) {
	if limit <= 0 {
		limit = DefaultMaxFavorites
	}
	if len(favorites) > limit {
		favorites = favorites[:limit]
	}
	if len(favorites) == 0 {
		return
	}

	b.WriteString("FAVORITE MEALS\n")
	fmt.Fprintf(b, "Include at least %d of these saved meals, adjusting portions to the targets:\n", min(2, len(favorites)))
	for _, m := range favorites {
		names := make([]string, 0, len(m.Foods))
		for _, f := range m.Foods {
			names = append(names, fmt.Sprintf("%s (%s)", f.Name, f.Portion))
		}
		fmt.Fprintf(b, "- %s: %s\n", m.Name, strings.Join(names, ", "))
	}
	b.WriteString("\n")
}
