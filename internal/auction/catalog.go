package auction

import "math/rand/v2"

// catalog picks names for new items.
type catalog struct {
	names []string
}

func newCatalog(names []string) catalog {
	if len(names) == 0 {
		names = DefaultConfig().Catalog
	}
	return catalog{names: append([]string(nil), names...)}
}

func (c catalog) pick() string {
	return c.names[rand.IntN(len(c.names))]
}
