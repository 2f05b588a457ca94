package diet

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type messageKey int

const (
	msgGeneric messageKey = iota
	msgIncompleteProfile
	msgRateLimited
	msgRateLimitedWait
	msgUnavailable
	msgTimeout
	msgMalformed
	msgStructural
	msgDietIncompatible
	msgProtein
	msgProteinMeal
	msgNoPlan
	msgMealNotFound
)

var catalog = map[string]map[messageKey]string{
	"pt-BR": {
		msgGeneric:           "Não foi possível concluir sua solicitação. Tente novamente.",
		msgIncompleteProfile: "Complete seu perfil (peso, altura, idade e sexo) para gerar um plano.",
		msgRateLimited:       "Muitas solicitações no momento. Aguarde um pouco e tente novamente.",
		msgRateLimitedWait:   "Muitas solicitações no momento. Tente novamente em %d segundos.",
		msgUnavailable:       "O serviço de geração está indisponível. Tente novamente mais tarde.",
		msgTimeout:           "A geração do plano demorou demais. Tente novamente mais tarde.",
		msgMalformed:         "Não conseguimos montar um plano válido desta vez. Tente novamente.",
		msgStructural:        "O plano gerado estava incompleto (%s). Tente novamente.",
		msgDietIncompatible:  "O alimento %q da refeição %q não é compatível com a sua dieta. Tente novamente.",
		msgProtein:           "O plano gerado não atingiu sua meta de proteína. Tente novamente.",
		msgProteinMeal:       "A refeição %q ficou abaixo da meta de proteína. Tente novamente.",
		msgNoPlan:            "Você ainda não tem um plano alimentar.",
		msgMealNotFound:      "Refeição não encontrada no plano atual.",
	},
	"en": {
		msgGeneric:           "We couldn't complete your request. Please try again.",
		msgIncompleteProfile: "Complete your profile (weight, height, age and sex) to generate a plan.",
		msgRateLimited:       "Too many requests right now. Please wait a moment and try again.",
		msgRateLimitedWait:   "Too many requests right now. Try again in %d seconds.",
		msgUnavailable:       "The plan generator is unavailable. Please try again later.",
		msgTimeout:           "Generating your plan took too long. Please try again later.",
		msgMalformed:         "We couldn't build a valid plan this time. Please try again.",
		msgStructural:        "The generated plan was incomplete (%s). Please try again.",
		msgDietIncompatible:  "The food %q in %q doesn't fit your diet. Please try again.",
		msgProtein:           "The generated plan missed your protein target. Please try again.",
		msgProteinMeal:       "%q came in under its protein target. Please try again.",
		msgNoPlan:            "You don't have a diet plan yet.",
		msgMealNotFound:      "That meal isn't in your current plan.",
	},
}

// DefaultLocale is used when a locale has no translations.
const DefaultLocale = "pt-BR"

// UserMessage translates a pipeline error into a single sentence for the
// user. Cancellation yields an empty string.
func UserMessage(err error, locale string) string {
	if err == nil || errors.Is(err, ErrCanceled) {
		return ""
	}

	msgs := messagesFor(locale)

	var (
		rateLimit  *RateLimitError
		structural *StructuralValidationError
		diet       *DietIncompatibilityError
		protein    *ProteinTargetError
	)

	switch {
	case errors.Is(err, ErrIncompleteProfile):
		return msgs[msgIncompleteProfile]
	case errors.As(err, &rateLimit) && rateLimit.RetryAfter > 0:
		return fmt.Sprintf(msgs[msgRateLimitedWait], int(math.Ceil(rateLimit.RetryAfter.Seconds())))
	case errors.Is(err, ErrRateLimited):
		return msgs[msgRateLimited]
	case errors.Is(err, ErrTimeout):
		return msgs[msgTimeout]
	case errors.Is(err, ErrServiceUnavailable):
		return msgs[msgUnavailable]
	case errors.As(err, &diet):
		return fmt.Sprintf(msgs[msgDietIncompatible], diet.Food, diet.Meal)
	case errors.As(err, &structural):
		return fmt.Sprintf(msgs[msgStructural], structural.Reason)
	case errors.As(err, &protein) && protein.Meal != "":
		return fmt.Sprintf(msgs[msgProteinMeal], protein.Meal)
	case errors.Is(err, ErrProteinTarget):
		return msgs[msgProtein]
	case errors.Is(err, ErrMalformedResponse):
		return msgs[msgMalformed]
	case errors.Is(err, ErrPlanNotFound):
		return msgs[msgNoPlan]
	case errors.Is(err, ErrMealNotFound):
		return msgs[msgMealNotFound]
	default:
		return msgs[msgGeneric]
	}
}

func messagesFor(locale string) map[messageKey]string {
	if msgs, ok := catalog[locale]; ok {
		return msgs
	}
	lang, _, _ := strings.Cut(locale, "-")
	if msgs, ok := catalog[lang]; ok {
		return msgs
	}
	if strings.EqualFold(lang, "pt") {
		return catalog["pt-BR"]
	}
	return catalog[DefaultLocale]
}
