package pricing

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Slot is one cell of a price matrix: a wear condition on the tracked or
// untracked curve.
type Slot struct {
	Tracked bool
	Wear    Wear
}

func (s Slot) String() string {
	if s.Tracked {
		return "stattrak/" + s.Wear.Key()
	}
	return "normal/" + s.Wear.Key()
}

// DefaultSlot is used when the requested variant has no price of its own.
var DefaultSlot = Slot{Tracked: false, Wear: FieldTested}

// PriceMatrix maps slots to prices. A slot present with a nil price is a
// confirmed non-existent variant; an absent slot is unknown.
type PriceMatrix map[Slot]*decimal.Decimal

// Set records a price for a slot.
func (m PriceMatrix) Set(s Slot, price decimal.Decimal) {
	m[s] = &price
}

// MarkNotObtainable records that the variant does not exist. It never
// replaces a price already observed in the same matrix.
func (m PriceMatrix) MarkNotObtainable(s Slot) {
	if _, ok := m[s]; !ok {
		m[s] = nil
	}
}

// Lookup reports the slot state: known price, confirmed-absent, or unknown.
func (m PriceMatrix) Lookup(s Slot) (price decimal.Decimal, known bool, obtainable bool) {
	p, ok := m[s]
	if !ok {
		return decimal.Zero, false, false
	}
	if p == nil {
		return decimal.Zero, true, false
	}
	return *p, true, true
}

// HasPrice reports whether at least one slot holds a price.
func (m PriceMatrix) HasPrice() bool {
	for _, p := range m {
		if p != nil {
			return true
		}
	}
	return false
}

// Lowest returns the cheapest priced slot.
func (m PriceMatrix) Lowest() (Slot, decimal.Decimal, bool) {
	var (
		best  Slot
		price decimal.Decimal
		found bool
	)
	for _, s := range m.Slots() {
		p := m[s]
		if p == nil {
			continue
		}
		if !found || p.LessThan(price) {
			best, price, found = s, *p, true
		}
	}
	return best, price, found
}

// Slots returns the known slots in a stable order.
func (m PriceMatrix) Slots() []Slot {
	slots := make([]Slot, 0, len(m))
	for s := range m {
		slots = append(slots, s)
	}
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Tracked != slots[j].Tracked {
			return !slots[i].Tracked
		}
		return slots[i].Wear < slots[j].Wear
	})
	return slots
}

// Clone returns a deep copy.
func (m PriceMatrix) Clone() PriceMatrix {
	if m == nil {
		return nil
	}
	out := make(PriceMatrix, len(m))
	for s, p := range m {
		if p == nil {
			out[s] = nil
			continue
		}
		v := *p
		out[s] = &v
	}
	return out
}

// HasWears reports whether any slot carries a wear condition.
func (m PriceMatrix) HasWears() bool {
	for s := range m {
		if s.Wear != WearNone {
			return true
		}
	}
	return false
}

// WithoutFlat returns a copy with the wear-less slots removed.
func (m PriceMatrix) WithoutFlat() PriceMatrix {
	out := m.Clone()
	for s := range out {
		if s.Wear == WearNone {
			delete(out, s)
		}
	}
	return out
}

// Merge overlays a newer extraction on m. Slots the newer matrix knows
// about win; slots it does not mention keep their previous state, so a
// confirmed-absent variant survives a partial fetch.
func (m PriceMatrix) Merge(newer PriceMatrix) PriceMatrix {
	out := m.Clone()
	if out == nil {
		out = make(PriceMatrix, len(newer))
	}
	for s, p := range newer {
		if p == nil {
			out[s] = nil
			continue
		}
		v := *p
		out[s] = &v
	}
	return out
}

// Resolve picks the price answering key: the exact slot, then the
// Field-Tested untracked default, then the cheapest priced slot. A
// wear-less key only has an exact slot on items that have no wears.
func (m PriceMatrix) Resolve(key ItemKey) (decimal.Decimal, Slot, error) {
	want := key.Slot()
	candidates := m
	if want.Wear == WearNone && m.HasWears() {
		candidates = m.WithoutFlat()
	}
	if price, known, ok := candidates.Lookup(want); known {
		if ok {
			return price, want, nil
		}
		return decimal.Zero, want, &Error{Kind: KindVariantNotObtainable, Item: key.MarketHashName()}
	}
	if price, _, ok := candidates.Lookup(DefaultSlot); ok {
		return price, DefaultSlot, nil
	}
	if s, price, ok := candidates.Lowest(); ok {
		return price, s, nil
	}
	return decimal.Zero, Slot{}, &Error{Kind: KindPriceUnavailable, Item: key.MarketHashName(), Err: fmt.Errorf("matrix holds no prices")}
}

type matrixJSON map[string]map[string]*decimal.Decimal

// MarshalJSON writes {"normal": {"factory_new": "45.5", "well_worn": null}, "stattrak": {...}}.
// Unknown slots are omitted; not-obtainable slots are null.
func (m PriceMatrix) MarshalJSON() ([]byte, error) {
	out := matrixJSON{}
	for s, p := range m {
		group := "normal"
		if s.Tracked {
			group = "stattrak"
		}
		if out[group] == nil {
			out[group] = map[string]*decimal.Decimal{}
		}
		out[group][s.Wear.Key()] = p
	}
	return json.Marshal(out)
}

func (m *PriceMatrix) UnmarshalJSON(data []byte) error {
	var in matrixJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	out := make(PriceMatrix)
	for group, slots := range in {
		var tracked bool
		switch group {
		case "normal":
		case "stattrak":
			tracked = true
		default:
			return fmt.Errorf("unknown matrix group %q", group)
		}
		for key, p := range slots {
			w, err := wearFromKey(key)
			if err != nil {
				return err
			}
			out[Slot{Tracked: tracked, Wear: w}] = p
		}
	}
	*m = out
	return nil
}

func wearFromKey(key string) (Wear, error) {
	for w, k := range wearKeys {
		if k == key {
			return w, nil
		}
	}
	return WearNone, fmt.Errorf("unknown wear key %q", key)
}
