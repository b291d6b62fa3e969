package orders

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Category decides the karma cost of a drink.
type Category string

const (
	CategoryWater    Category = "water"
	CategoryDrip     Category = "drip"
	CategoryEspresso Category = "espresso"
)

// Categories lists every category in ascending cost.
var Categories = []Category{CategoryWater, CategoryDrip, CategoryEspresso}

// Cost returns the karma price of the category, or 0 if it is unknown.
func (c Category) Cost() int64 {
	switch c {
	case CategoryWater:
		return 1
	case CategoryDrip:
		return 2
	case CategoryEspresso:
		return 3
	}
	return 0
}

// Blocked reports whether the category is currently refused at intake.
func (c Category) Blocked() bool {
	return c == CategoryEspresso
}

func (c Category) Valid() bool {
	return c.Cost() > 0
}

func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	return c, c.Valid()
}

type menuItem struct {
	name     string
	category Category
}

type menuItems []menuItem

func (m menuItems) Len() int            { return len(m) }
func (m menuItems) String(i int) string { return m[i].name }

// espresso drinks come first so "green tea latte" resolves to the pricier category.
var menu = menuItems{
	{"espresso", CategoryEspresso},
	{"latte", CategoryEspresso},
	{"cappuccino", CategoryEspresso},
	{"americano", CategoryEspresso},
	{"flat white", CategoryEspresso},
	{"macchiato", CategoryEspresso},
	{"cortado", CategoryEspresso},
	{"mocha", CategoryEspresso},
	{"drip coffee", CategoryDrip},
	{"coffee", CategoryDrip},
	{"cold brew", CategoryDrip},
	{"green tea", CategoryDrip},
	{"tea", CategoryDrip},
	{"chai", CategoryDrip},
	{"matcha", CategoryDrip},
	{"sparkling water", CategoryWater},
	{"water", CategoryWater},
}

// Classify resolves free-form drink text to a category. Whole menu words win;
// otherwise the text is fuzzy matched as an abbreviation of a menu item.
func Classify(drink string) (Category, bool) {
	text := strings.ToLower(strings.Join(strings.Fields(drink), " "))
	if text == "" {
		return "", false
	}

	for _, item := range menu {
		if containsWord(text, item.name) {
			return item.category, true
		}
	}

	matches := fuzzy.FindFrom(text, menu)
	if len(matches) == 0 {
		return "", false
	}
	return menu[matches[0].Index].category, true
}

func containsWord(text, word string) bool {
	for i := 0; ; {
		j := strings.Index(text[i:], word)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(word)
		if (start == 0 || !isLetter(text[start-1])) && (end == len(text) || !isLetter(text[end])) {
			return true
		}
		i = start + 1
	}
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z'
}
