package core

// UnknownCategory stands in for a transaction whose category id matches
// nothing in the catalog.
var UnknownCategory = Category{Name: "Unknown", Icon: "HelpCircle"}

// DefaultCategories returns the seeded catalog. Categories are not persisted;
// every session starts from this list.
func DefaultCategories() []Category {
	return []Category{
		{ID: "salary", Name: "Salary", Type: Income, Icon: "Briefcase"},
		{ID: "investment", Name: "Investment", Type: Income, Icon: "TrendingUp"},
		{ID: "gift", Name: "Gift", Type: Income, Icon: "Gift"},
		{ID: "food", Name: "Food & Dining", Type: Expense, Icon: "UtensilsCrossed"},
		{ID: "transport", Name: "Transportation", Type: Expense, Icon: "Car"},
		{ID: "shopping", Name: "Shopping", Type: Expense, Icon: "ShoppingBag"},
		{ID: "housing", Name: "Housing", Type: Expense, Icon: "Home"},
		{ID: "utilities", Name: "Utilities", Type: Expense, Icon: "Plug"},
		{ID: "entertainment", Name: "Entertainment", Type: Expense, Icon: "Film"},
		{ID: "health", Name: "Healthcare", Type: Expense, Icon: "Heart"},
		{ID: "education", Name: "Education", Type: Expense, Icon: "GraduationCap"},
		{ID: "other", Name: "Other", Type: Expense, Icon: "MoreHorizontal"},
	}
}

// FindCategory returns the category with the given id.
func FindCategory(categories []Category, id string) (Category, bool) {
	for _, c := range categories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// LookupCategory is FindCategory with the Unknown placeholder for misses.
func LookupCategory(categories []Category, id string) Category {
	if c, ok := FindCategory(categories, id); ok {
		return c
	}
	return UnknownCategory
}

// CategoriesOfType keeps the categories of type t, preserving catalog order.
func CategoriesOfType(categories []Category, t TransactionType) []Category {
	out := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}
