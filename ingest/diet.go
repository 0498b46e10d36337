package ingest

import "strings"

// Diet classes stored with each recipe.
const (
	DietWithMeat    = "with_meat"
	DietPescetarian = "pescetarian"
	DietVegetarian  = "vegetarian"
	DietVegan       = "vegan"
	DietOmni        = "omni"
)

var (
	meatWords = []string{
		"meat", "chicken", "turkey", "duck", "goose", "quail", "pheasant", "guinea", "cornish hen",
		"beef", "veal", "steak", "brisket", "short ribs", "oxtail", "sirloin", "ribeye",
		"pork", "bacon", "ham", "prosciutto", "pancetta", "sausage", "chorizo",
		"lamb", "mutton", "goat", "venison", "deer", "elk", "rabbit", "boar", "bison", "buffalo",
		"meatballs", "hot dog", "kebab", "salami", "pepperoni", "pâté", "liverwurst",
	}
	fishWords = []string{
		"salmon", "tuna", "cod", "haddock", "tilapia", "trout", "mackerel", "sardines", "anchovies",
		"halibut", "snapper", "catfish", "sole", "swordfish", "pollock",
	}
	shellfishWords = []string{
		"shrimp", "prawns", "crab", "lobster", "mussels", "clams", "scallops", "squid", "calamari",
		"octopus", "oysters",
	}
	dairyWords = []string{
		"dairy", "milk", "cream", "butter", "ghee", "cheese", "cheddar", "mozzarella", "parmesan",
		"gouda", "provolone", "brie", "camembert", "feta", "gorgonzola", "ricotta", "mascarpone",
		"queso fresco", "halloumi", "paneer", "pecorino", "asiago", "romano", "monterey jack",
		"havarti", "yogurt", "kefir", "labneh", "skyr", "custard", "flan",
	}
	eggWords = []string{
		"egg", "mayonnaise", "aioli", "hollandaise", "meringue", "quiche", "omelette", "frittata",
		"brioche", "challah",
	}
	dessertWords = []string{
		"cake", "cookie", "brownie", "muffin", "cupcake", "pancake", "waffle", "pie", "tart",
		"crumble", "pudding", "custard", "mousse", "cheesecake", "ice cream", "gelato", "sorbet",
		"parfait", "trifle", "doughnut", "donut", "croissant", "strudel", "crepe", "biscuit", "scone",
		"macaron", "meringue", "chocolate", "cocoa", "caramel", "vanilla", "sweet", "sugar", "dessert",
		"fruit salad", "compote", "jam", "syrup", "frosting", "icing",
	}
)

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Classify assigns a diet class from the ingredients and flags desserts from the title and
// ingredients. Recipes with meat or fish are never desserts.
func Classify(r Recipe) (diet string, dessert bool) {
	ingredients := strings.ToLower(strings.Join(r.Ingredients, " "))
	title := strings.ToLower(r.Title)

	meat := containsAny(ingredients, meatWords)
	fish := containsAny(ingredients, fishWords)
	shellfish := containsAny(ingredients, shellfishWords)

	switch {
	case strings.TrimSpace(ingredients) == "":
		diet = DietOmni
	case meat:
		diet = DietWithMeat
	case fish || shellfish:
		diet = DietPescetarian
	case !containsAny(ingredients, dairyWords) && !containsAny(ingredients, eggWords) && !strings.Contains(ingredients, "honey"):
		diet = DietVegan
	default:
		diet = DietVegetarian
	}

	dessert = (containsAny(title, dessertWords) || containsAny(ingredients, dessertWords)) && !meat && !fish
	return diet, dessert
}
