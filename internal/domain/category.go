package domain

// Article categories. The set is closed; anything else is coerced to DefaultCategory.
const (
	CategoryPolitics      = "سیاست"
	CategoryEconomy       = "اقتصاد"
	CategoryTechnology    = "فناوری"
	CategoryHealth        = "سلامت"
	CategorySports        = "ورزش"
	CategoryEntertainment = "سرگرمی"
	CategoryWorld         = "جهان"

	DefaultCategory = CategoryWorld
)

// Categories lists the valid categories in prompt order.
var Categories = []string{
	CategoryPolitics,
	CategoryEconomy,
	CategoryTechnology,
	CategoryHealth,
	CategorySports,
	CategoryEntertainment,
	CategoryWorld,
}

// IsValidCategory reports whether c belongs to the closed category set.
func IsValidCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// CoerceCategory returns c when valid and DefaultCategory otherwise.
func CoerceCategory(c string) string {
	if IsValidCategory(c) {
		return c
	}
	return DefaultCategory
}
