package catalog

// Country is a provider-level lookup row, keyed by ISO-ish code. Some
// entries (continents, "World") carry no code; those key by name instead.
type Country struct {
	Code string
	Name string
	Flag string
}

// Key returns the identity the archive upserts by.
func (c Country) Key() string {
	if c.Code != "" {
		return c.Code
	}
	return c.Name
}

// Timezone is one provider-recognised zone name.
type Timezone struct {
	Name string
}
