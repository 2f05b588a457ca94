package diet

import (
	"sort"
	"strings"
	"unicode"
)

var fleshIngredients = []string{
	"frango", "chicken", "carne", "meat", "beef", "bife", "steak", "vitela", "veal", "porco", "pork", "bacon",
	"ham", "presunto", "prosciutto", "lombo", "costela", "linguica", "sausage", "salsicha", "hamburguer",
	"burger", "patinho", "alcatra", "picanha", "fraldinha", "acem", "musculo", "peru", "turkey", "pato",
	"duck", "cordeiro", "lamb", "peixe", "fish", "salmao", "salmon", "atum", "tuna", "tilapia", "truta",
	"trout", "bacalhau", "cod", "sardinha", "sardine", "anchova", "anchovy", "camarao", "camaroes", "shrimp",
	"caranguejo", "crab", "lagosta", "lobster", "mexilhao", "mexilhoes", "mussel", "ostra", "oyster", "lula", "squid",
	"polvo", "octopus", "gelatina", "gelatin",
}

var animalProducts = []string{
	"ovo", "egg", "omelete", "omelette", "clara", "gema", "leite", "milk", "queijo", "cheese", "iogurte",
	"yogurt", "kefir", "coalhada", "manteiga", "butter", "requeijao", "creme de leite", "cream", "nata", "whey",
	"caseina", "casein", "mel", "honey", "ricota", "ricotta", "cottage", "mussarela", "mozzarella",
	"parmesao", "parmesan", "ghee", "colageno", "collagen",
}

// Plant-based phrases that contain a banned word but are allowed.
var plantBasedPhrases = []string{
	"leite de coco", "leite de amendoa", "leite de aveia", "leite de soja", "leite de arroz", "leite vegetal",
	"coconut milk", "almond milk", "oat milk", "soy milk", "rice milk", "plant milk",
	"queijo vegano", "queijo vegetal", "vegan cheese", "iogurte vegetal", "iogurte de coco", "vegan yogurt",
	"coconut yogurt", "manteiga de amendoim", "manteiga de amendoa", "manteiga de cacau", "peanut butter",
	"almond butter", "cocoa butter", "butternut", "eggplant", "carne de soja", "carne vegetal",
	"proteina de soja", "creme de coco", "coconut cream", "cream of tartar", "melancia", "melao", "melon",
	"melado", "mel de agave", "agave", "hamburguer vegetal", "hamburguer de grao", "hamburguer de lentilha",
	"hamburguer de soja", "hamburguer de feijao", "veggie burger", "bean burger", "plant burger",
	"plant-based meat", "meatless", "kefir de agua", "water kefir", "cogumelo ostra", "oyster mushroom",
	"caramelo",
}

var bannedByDiet = map[DietType][]string{
	DietVegetarian: fleshIngredients,
	DietVegan:      append(append([]string{}, fleshIngredients...), animalProducts...),
}

// BannedIngredients returns the banned ingredient keywords for a diet, in
// a stable order.
func BannedIngredients(diet DietType) []string {
	banned := append([]string{}, bannedByDiet[diet]...)
	sort.Strings(banned)
	return banned
}

// findBanned returns the first banned keyword found in name. Keywords of
// three letters or fewer only match at the start of a word ("ovos" but not
// "novo").
func findBanned(diet DietType, name string) (string, bool) {
	banned := bannedByDiet[diet]
	if len(banned) == 0 {
		return "", false
	}

	n := Normalize(name)
	for _, phrase := range plantBasedPhrases {
		n = strings.ReplaceAll(n, phrase, " ")
	}
	words := strings.FieldsFunc(n, func(r rune) bool { return !unicode.IsLetter(r) })

	for _, kw := range banned {
		if len(kw) > 3 {
			if strings.Contains(n, kw) {
				return kw, true
			}
			continue
		}
		for _, w := range words {
			if strings.HasPrefix(w, kw) {
				return kw, true
			}
		}
	}
	return "", false
}
