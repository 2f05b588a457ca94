package diet

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// CandidatePlan is the model output before validation. It accepts loosely
// typed values so that validation, not decoding, reports what is wrong.
type CandidatePlan struct {
	Meals []CandidateMeal `json:"meals" validate:"required"`
}

// CandidateMeal is a meal as returned by the model.
type CandidateMeal struct {
	Name  string          `json:"name" validate:"required,notblank"`
	Time  string          `json:"time" validate:"required,hhmm"`
	Foods []CandidateFood `json:"foods" validate:"required,min=1,dive"`
}

// CandidateFood is a food as returned by the model.
type CandidateFood struct {
	Name         string          `json:"name" validate:"required,notblank"`
	Portion      string          `json:"portion" validate:"required,notblank"`
	Calories     *Number         `json:"calories" validate:"required,gte=0"`
	Protein      *Number         `json:"protein" validate:"required,gte=0"`
	Carbs        *Number         `json:"carbs" validate:"required,gte=0"`
	Fat          *Number         `json:"fat" validate:"required,gte=0"`
	Alternatives []CandidateFood `json:"alternatives,omitempty"`
}

// Number decodes JSON numbers and numeric strings with an optional unit
// suffix such as "25g" or "12,5 g".
type Number float64

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:[.,]\d+)?)`)

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		m := leadingNumber.FindStringSubmatch(s)
		if m == nil {
			return fmt.Errorf("not a number: %q", s)
		}
		v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
		if err != nil {
			return err
		}
		*n = Number(v)
		return nil
	}

	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Number(v)
	return nil
}

func (n *Number) value() float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}

// ParseCandidate decodes a JSON object into a candidate plan.
func ParseCandidate(raw []byte) (*CandidatePlan, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &MalformedResponseError{Reason: "content is not a JSON object", Err: err}
	}
	if _, ok := fields["meals"]; !ok {
		return nil, &MalformedResponseError{Reason: `missing "meals"`}
	}

	var plan CandidatePlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return nil, &MalformedResponseError{Reason: "unexpected plan shape", Err: err}
	}
	return &plan, nil
}

func (f CandidateFood) toFood() Food {
	food := Food{
		Name:     strings.TrimSpace(f.Name),
		Portion:  strings.TrimSpace(f.Portion),
		Calories: f.Calories.value(),
		Protein:  f.Protein.value(),
		Carbs:    f.Carbs.value(),
		Fat:      f.Fat.value(),
	}
	for _, alt := range f.Alternatives {
		if strings.TrimSpace(alt.Name) == "" {
			continue
		}
		food.Alternatives = append(food.Alternatives, alt.toFood())
	}
	return food
}

// toMeals converts a structurally valid candidate into plan meals.
func (c *CandidatePlan) toMeals() []Meal {
	meals := make([]Meal, 0, len(c.Meals))
	for _, cm := range c.Meals {
		meal := Meal{
			Name:  strings.TrimSpace(cm.Name),
			Time:  strings.TrimSpace(cm.Time),
			Foods: make([]Food, 0, len(cm.Foods)),
		}
		for _, cf := range cm.Foods {
			meal.Foods = append(meal.Foods, cf.toFood())
		}
		meal.Recompute()
		meals = append(meals, meal)
	}
	return meals
}
