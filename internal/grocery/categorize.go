package grocery

import "strings"

// Category is one of the fixed grocery aisles an item is filed under.
type Category string

const (
	Produce        Category = "produce"
	MeatSeafood    Category = "meat & seafood"
	Deli           Category = "deli & prepared foods"
	DairyEggs      Category = "dairy & eggs"
	Frozen         Category = "frozen foods"
	Bakery         Category = "bakery"
	Pantry         Category = "pantry & canned goods"
	OilsCondiments Category = "oils & condiments"
	SpicesBaking   Category = "spices & baking"
	Breakfast      Category = "breakfast & cereal"
	Snacks         Category = "snacks"
	Beverages      Category = "beverages"
	Household      Category = "household & cleaning"
	PersonalCare   Category = "personal care"
	BabyKids       Category = "baby & kids"
	PetSupplies    Category = "pet supplies"
	Others         Category = "others"
)

// Categorize returns the category for the given item name. Keyword groups are
// tried in declaration order and the first group with a keyword contained in
// the lowercased name wins, so "chicken broth" is meat & seafood, not pantry.
// Falls back to Others if nothing matches.
func Categorize(itemName string) Category {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return Others
	}

	for _, g := range keywordGroups {
		for _, kw := range g.keywords {
			if strings.Contains(name, kw) {
				return g.category
			}
		}
	}

	return Others
}

// Categories returns every category in display order, Others last.
func Categories() []Category {
	out := make([]Category, 0, len(keywordGroups)+1)
	for _, g := range keywordGroups {
		out = append(out, g.category)
	}
	return append(out, Others)
}

// Parse maps a stored category label back to a Category. Unknown labels map
// to Others.
func Parse(s string) Category {
	c := Category(s)
	if _, ok := icons[c]; ok {
		return c
	}
	return Others
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	_, ok := icons[c]
	return ok
}

// Icon returns the display emoji for the category.
func (c Category) Icon() string {
	if icon, ok := icons[c]; ok {
		return icon
	}
	return icons[Others]
}

func (c Category) String() string { return string(c) }

var icons = map[Category]string{
	Produce:        "🥬",
	MeatSeafood:    "🥩",
	Deli:           "🥓",
	DairyEggs:      "🥛",
	Frozen:         "🧊",
	Bakery:         "🍞",
	Pantry:         "🥫",
	OilsCondiments: "🫒",
	SpicesBaking:   "🌶️",
	Breakfast:      "🥣",
	Snacks:         "🍿",
	Beverages:      "🥤",
	Household:      "🧹",
	PersonalCare:   "🧴",
	BabyKids:       "👶",
	PetSupplies:    "🐾",
	Others:         "📦",
}

type keywordGroup struct {
	category Category
	keywords []string
}

// Declaration order is classification priority. Do not reorder.
var keywordGroups = []keywordGroup{
	{Produce, []string{
		"apple", "banana", "orange", "grape", "strawberry", "mango", "pear", "peach", "plum", "cherry",
		"watermelon", "melon", "kiwi", "pineapple", "blueberry", "raspberry", "lemon", "lime", "avocado", "coconut",
		"carrot", "potato", "tomato", "onion", "garlic", "lettuce", "cabbage", "broccoli", "cauliflower", "spinach",
		"cucumber", "pepper", "bell pepper", "celery", "zucchini", "eggplant", "radish", "beetroot", "corn", "peas",
		"mushroom", "asparagus", "kale", "arugula", "squash",
	}},
	{MeatSeafood, []string{
		"chicken", "beef", "pork", "lamb", "turkey", "steak", "ground beef", "ground turkey", "ribs", "brisket", "roast",
		"fish", "salmon", "tuna", "cod", "tilapia", "halibut", "shrimp", "prawns", "lobster", "crab", "scallops",
		"mussels", "oyster", "clams",
	}},
	{Deli, []string{
		"bacon", "sausage", "ham", "salami", "pepperoni", "deli meat", "turkey breast", "roast beef", "prosciutto",
		"chorizo", "hot dog", "bratwurst", "rotisserie chicken", "prepared meals",
	}},
	{DairyEggs, []string{
		"milk", "whole milk", "skim milk", "almond milk", "oat milk", "soy milk", "heavy cream", "half and half", "whipping cream",
		"cheese", "cheddar", "mozzarella", "parmesan", "swiss", "feta", "gouda", "brie", "cream cheese", "cottage cheese", "ricotta",
		"butter", "margarine", "yogurt", "greek yogurt", "sour cream", "eggs", "egg whites",
	}},
	{Frozen, []string{
		"ice cream", "frozen pizza", "frozen vegetables", "frozen fruit", "frozen dinner", "frozen fries", "frozen chicken",
		"popsicle", "frozen waffles", "frozen burrito", "frozen fish", "gelato", "sorbet", "frozen yogurt",
	}},
	{Bakery, []string{
		"bread", "white bread", "wheat bread", "sourdough", "rye bread", "baguette", "croissant", "bagel", "english muffin",
		"muffin", "donut", "danish", "cake", "cookies", "roll", "buns", "hamburger buns", "hot dog buns", "tortilla", "pita", "naan",
	}},
	{Pantry, []string{
		"rice", "brown rice", "white rice", "pasta", "spaghetti", "penne", "macaroni", "noodles", "ramen",
		"flour", "all-purpose flour", "wheat flour", "sugar", "brown sugar", "powdered sugar",
		"canned beans", "black beans", "kidney beans", "chickpeas", "beans", "lentils",
		"canned tomato", "tomato sauce", "tomato paste", "diced tomatoes", "crushed tomatoes",
		"canned soup", "chicken broth", "beef broth", "vegetable broth", "stock",
		"tuna can", "canned tuna", "canned chicken", "canned corn", "canned peas",
	}},
	{OilsCondiments, []string{
		"olive oil", "vegetable oil", "canola oil", "coconut oil", "cooking spray", "oil",
		"ketchup", "mustard", "mayo", "mayonnaise", "relish", "bbq sauce", "hot sauce", "sriracha", "soy sauce", "worcestershire", "teriyaki",
		"vinegar", "balsamic vinegar", "apple cider vinegar", "white vinegar", "rice vinegar",
		"salad dressing", "ranch", "italian dressing", "caesar dressing",
		"pasta sauce", "marinara", "alfredo", "pesto", "salsa", "guacamole", "hummus",
	}},
	{SpicesBaking, []string{
		"salt", "sea salt", "kosher salt", "pepper", "black pepper", "cumin", "turmeric", "paprika", "cayenne", "chili powder",
		"cinnamon", "oregano", "basil", "thyme", "rosemary", "parsley", "cilantro", "dill", "sage", "bay leaves",
		"coriander", "cardamom", "clove", "nutmeg", "ginger", "garlic powder", "onion powder", "italian seasoning", "taco seasoning",
		"baking powder", "baking soda", "yeast", "vanilla extract", "cocoa powder", "chocolate chips", "sprinkles",
	}},
	{Breakfast, []string{
		"cereal", "corn flakes", "cheerios", "granola", "oatmeal", "oats", "instant oats", "pancake mix", "waffle mix",
		"syrup", "maple syrup", "honey", "jam", "jelly", "peanut butter", "almond butter", "nutella",
	}},
	{Snacks, []string{
		"chips", "potato chips", "tortilla chips", "pretzels", "popcorn", "crackers", "goldfish", "cheez-its",
		"nuts", "almonds", "cashews", "peanuts", "trail mix", "granola bar", "protein bar", "candy", "chocolate", "gummy bears", "cookies",
	}},
	{Beverages, []string{
		"water", "sparkling water", "soda", "coke", "pepsi", "sprite", "juice", "orange juice", "apple juice", "cranberry juice",
		"coffee", "tea", "green tea", "iced tea", "energy drink", "sports drink", "gatorade", "beer", "wine", "seltzer",
	}},
	{Household, []string{
		"paper towels", "toilet paper", "tissues", "napkins", "trash bags", "ziplock bags", "aluminum foil", "plastic wrap", "parchment paper",
		"dish soap", "laundry detergent", "fabric softener", "bleach", "disinfectant", "wipes", "sponge", "cleaning spray", "glass cleaner",
	}},
	{PersonalCare, []string{
		"shampoo", "conditioner", "body wash", "soap", "toothpaste", "toothbrush", "mouthwash", "floss", "deodorant",
		"lotion", "sunscreen", "razors", "shaving cream",
	}},
	{BabyKids, []string{
		"diapers", "baby wipes", "baby food", "baby formula", "baby powder", "pacifier",
	}},
	{PetSupplies, []string{
		"dog food", "cat food", "pet food", "dog treats", "cat treats", "cat litter", "pet treats",
	}},
}
