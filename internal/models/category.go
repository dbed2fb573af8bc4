package models

// Category classifies an expense. The set is closed; anything else is
// rejected at the boundary.
type Category string

const (
	CategoryFood          Category = "food"
	CategoryGroceries     Category = "groceries"
	CategoryTravel        Category = "travel"
	CategoryStays         Category = "stays"
	CategoryBills         Category = "bills"
	CategorySubscription  Category = "subscription"
	CategoryShopping      Category = "shopping"
	CategoryGifts         Category = "gifts"
	CategoryDrinks        Category = "drinks"
	CategoryFuel          Category = "fuel"
	CategoryDebt          Category = "debt"
	CategoryHealth        Category = "health"
	CategoryEntertainment Category = "entertainment"
	CategoryMisc          Category = "misc"
)

// categories lists every category in display order. Aggregation seeds its
// per-category sums from this list so zero-spend categories are reported
// explicitly.
var categories = []Category{
	CategoryFood,
	CategoryGroceries,
	CategoryTravel,
	CategoryStays,
	CategoryBills,
	CategorySubscription,
	CategoryShopping,
	CategoryGifts,
	CategoryDrinks,
	CategoryFuel,
	CategoryDebt,
	CategoryHealth,
	CategoryEntertainment,
	CategoryMisc,
}

// Categories returns all known expense categories in a stable order.
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Category) String() string { return string(c) }
