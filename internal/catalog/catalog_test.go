package catalog_test

import (
	"testing"

	"podforge/internal/catalog"
)

func TestLookupResolvesAliases(t *testing.T) {
	p, ok := catalog.Lookup(" TShirt ")
	if !ok {
		t.Fatal("expected tshirt alias to resolve")
	}
	if p.ID != "mens_tshirt" || p.BlueprintID != 5 {
		t.Fatalf("unexpected product: %+v", p)
	}
	if _, ok := catalog.Lookup("spaceship"); ok {
		t.Fatal("expected unknown product to miss")
	}
}

func TestIDsAreSortedAndResolvable(t *testing.T) {
	ids := catalog.IDs()
	if len(ids) == 0 {
		t.Fatal("expected catalog entries")
	}
	for i, id := range ids {
		if i > 0 && ids[i-1] >= id {
			t.Fatalf("ids not sorted: %v", ids)
		}
		if !catalog.Known(id) {
			t.Fatalf("id %q does not resolve", id)
		}
	}
}
