// Package catalog lists the product types podforge can publish, with the
// Printify blueprint and provider used to create each one.
package catalog

import (
	"sort"
	"strings"
)

// Category groups product types for listing tags.
type Category string

const (
	CategoryApparel     Category = "apparel"
	CategoryHomeLiving  Category = "home_living"
	CategoryAccessories Category = "accessories"
)

// printifyChoice lets Printify pick the best available print provider.
const printifyChoice = 99

// Product describes one publishable product type.
type Product struct {
	ID          string
	Name        string
	Category    Category
	BlueprintID int
	ProviderID  int
	PriceCents  int
	MinWidth    int
	MinHeight   int
}

var products = map[string]Product{
	"mens_tshirt":         {ID: "mens_tshirt", Name: "Men's T-Shirt", Category: CategoryApparel, BlueprintID: 5, ProviderID: printifyChoice, PriceCents: 1999, MinWidth: 2400, MinHeight: 2400},
	"womens_tshirt":       {ID: "womens_tshirt", Name: "Women's T-Shirt", Category: CategoryApparel, BlueprintID: 6, ProviderID: printifyChoice, PriceCents: 1999, MinWidth: 2400, MinHeight: 2400},
	"premium_tshirt":      {ID: "premium_tshirt", Name: "Premium T-Shirt", Category: CategoryApparel, BlueprintID: 4, ProviderID: printifyChoice, PriceCents: 2299, MinWidth: 2400, MinHeight: 2400},
	"hoodie":              {ID: "hoodie", Name: "Hoodie", Category: CategoryApparel, BlueprintID: 77, ProviderID: printifyChoice, PriceCents: 3499, MinWidth: 2400, MinHeight: 2400},
	"crewneck_sweatshirt": {ID: "crewneck_sweatshirt", Name: "Crewneck Sweatshirt", Category: CategoryApparel, BlueprintID: 53, ProviderID: printifyChoice, PriceCents: 2999, MinWidth: 2400, MinHeight: 2400},
	"long_sleeve":         {ID: "long_sleeve", Name: "Long Sleeve T-Shirt", Category: CategoryApparel, BlueprintID: 7, ProviderID: printifyChoice, PriceCents: 2499, MinWidth: 2400, MinHeight: 2400},
	"tank_top":            {ID: "tank_top", Name: "Tank Top", Category: CategoryApparel, BlueprintID: 8, ProviderID: printifyChoice, PriceCents: 1899, MinWidth: 2400, MinHeight: 2400},
	"poster":              {ID: "poster", Name: "Poster", Category: CategoryHomeLiving, BlueprintID: 1, ProviderID: printifyChoice, PriceCents: 1499, MinWidth: 1800, MinHeight: 2400},
	"canvas":              {ID: "canvas", Name: "Canvas Print", Category: CategoryHomeLiving, BlueprintID: 2, ProviderID: printifyChoice, PriceCents: 3999, MinWidth: 1800, MinHeight: 2400},
	"throw_pillow":        {ID: "throw_pillow", Name: "Throw Pillow", Category: CategoryHomeLiving, BlueprintID: 27, ProviderID: printifyChoice, PriceCents: 2499, MinWidth: 1800, MinHeight: 1800},
	"mug":                 {ID: "mug", Name: "Coffee Mug", Category: CategoryAccessories, BlueprintID: 12, ProviderID: printifyChoice, PriceCents: 1499, MinWidth: 1200, MinHeight: 1200},
	"tote_bag":            {ID: "tote_bag", Name: "Tote Bag", Category: CategoryAccessories, BlueprintID: 326, ProviderID: printifyChoice, PriceCents: 1999, MinWidth: 1800, MinHeight: 1800},
}

// aliases maps shorthand names accepted from callers to catalog IDs.
var aliases = map[string]string{
	"tshirt":     "mens_tshirt",
	"t-shirt":    "mens_tshirt",
	"tee":        "mens_tshirt",
	"sweatshirt": "crewneck_sweatshirt",
	"pillow":     "throw_pillow",
	"tote":       "tote_bag",
}

// Lookup resolves a product type or alias (case-insensitive).
func Lookup(id string) (Product, bool) {
	key := strings.ToLower(strings.TrimSpace(id))
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	p, ok := products[key]
	return p, ok
}

// Known reports whether id resolves to a catalog product.
func Known(id string) bool {
	_, ok := Lookup(id)
	return ok
}

// IDs returns the sorted canonical product type identifiers.
func IDs() []string {
	out := make([]string, 0, len(products))
	for id := range products {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
