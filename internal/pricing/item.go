package pricing

import (
	"fmt"
	"strings"
)

// Wear is the cosmetic condition tier of a skin. The zero value means the
// item has no wear variants at all (cases, stickers, agents).
type Wear int

const (
	WearNone Wear = iota
	FactoryNew
	MinimalWear
	FieldTested
	WellWorn
	BattleScarred
)

// Wears lists the five real conditions in display order.
var Wears = []Wear{FactoryNew, MinimalWear, FieldTested, WellWorn, BattleScarred}

var wearNames = map[Wear]string{
	FactoryNew:    "Factory New",
	MinimalWear:   "Minimal Wear",
	FieldTested:   "Field-Tested",
	WellWorn:      "Well-Worn",
	BattleScarred: "Battle-Scarred",
}

var wearKeys = map[Wear]string{
	WearNone:      "none",
	FactoryNew:    "factory_new",
	MinimalWear:   "minimal_wear",
	FieldTested:   "field_tested",
	WellWorn:      "well_worn",
	BattleScarred: "battle_scarred",
}

var wearCodes = map[Wear]string{
	FactoryNew:    "FN",
	MinimalWear:   "MW",
	FieldTested:   "FT",
	WellWorn:      "WW",
	BattleScarred: "BS",
}

// String returns the market label, e.g. "Field-Tested".
func (w Wear) String() string {
	if name, ok := wearNames[w]; ok {
		return name
	}
	return ""
}

// Key returns the snake_case key used in serialized matrices.
func (w Wear) Key() string {
	return wearKeys[w]
}

// Code returns the two-letter abbreviation.
func (w Wear) Code() string {
	return wearCodes[w]
}

// ParseWear accepts market labels ("Field-Tested"), matrix keys
// ("field_tested") and codes ("FT"), case-insensitively. An empty string
// parses to WearNone.
func ParseWear(s string) (Wear, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return WearNone, nil
	}
	norm := strings.ToLower(s)
	for _, w := range Wears {
		if norm == strings.ToLower(w.String()) || norm == w.Key() || norm == strings.ToLower(w.Code()) {
			return w, nil
		}
	}
	// "field tested" / "battle scarred" without the hyphen
	norm = strings.ReplaceAll(norm, " ", "-")
	for _, w := range Wears {
		if norm == strings.ToLower(w.String()) {
			return w, nil
		}
	}
	return WearNone, fmt.Errorf("unknown wear condition %q", s)
}

// WearFromLabel finds the first wear label contained in free text, as it
// appears on listing pages. Returns WearNone when no label is present.
func WearFromLabel(text string) Wear {
	lower := strings.ToLower(text)
	for _, w := range Wears {
		if strings.Contains(lower, strings.ToLower(w.String())) {
			return w
		}
	}
	return WearNone
}

const trackedPrefix = "StatTrak™ "

// ItemKey identifies a priceable catalog entry.
type ItemKey struct {
	BaseName string
	Wear     Wear
	Tracked  bool
}

// Slot returns the matrix slot the key points at.
func (k ItemKey) Slot() Slot {
	return Slot{Tracked: k.Tracked, Wear: k.Wear}
}

// MarketHashName renders the Steam market name for the key.
func (k ItemKey) MarketHashName() string {
	var b strings.Builder
	base := k.BaseName
	if k.Tracked {
		// knives carry the star before the StatTrak marker
		if strings.HasPrefix(base, "★ ") {
			b.WriteString("★ ")
			base = strings.TrimPrefix(base, "★ ")
		}
		b.WriteString(trackedPrefix)
	}
	b.WriteString(base)
	if k.Wear != WearNone {
		b.WriteString(" (")
		b.WriteString(k.Wear.String())
		b.WriteString(")")
	}
	return b.String()
}

func (k ItemKey) String() string {
	return k.MarketHashName()
}

// ParseMarketHashName splits a full market name into its base name and
// variant attributes.
func ParseMarketHashName(name string) (ItemKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return ItemKey{}, fmt.Errorf("empty market hash name")
	}

	var key ItemKey
	for _, prefix := range []string{"StatTrak™ ", "StatTrak ", "Stattrak "} {
		if strings.HasPrefix(name, prefix) {
			key.Tracked = true
			name = strings.TrimPrefix(name, prefix)
			break
		}
	}
	if strings.HasPrefix(name, "★ StatTrak™ ") {
		key.Tracked = true
		name = "★ " + strings.TrimPrefix(name, "★ StatTrak™ ")
	}

	if i := strings.LastIndex(name, " ("); i > 0 && strings.HasSuffix(name, ")") {
		if w, err := ParseWear(name[i+2 : len(name)-1]); err == nil {
			key.Wear = w
			name = name[:i]
		}
	}

	key.BaseName = strings.TrimSpace(name)
	if key.BaseName == "" {
		return ItemKey{}, fmt.Errorf("market hash name has no base name")
	}
	return key, nil
}
