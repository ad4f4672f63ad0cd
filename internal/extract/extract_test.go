package extract

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"csgo-pricer/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decs(ss ...string) []decimal.Decimal {
	out := make([]decimal.Decimal, len(ss))
	for i, s := range ss {
		out[i] = dec(s)
	}
	return out
}

const itemPage = `<!DOCTYPE html>
<html><head><title>AK-47 | Redline - CSGOSKINS.GG</title></head>
<body>
<nav><a href="/weapons/awp">AWP</a><a href="/weapons/ak-47">AK-47</a></nav>
<img id="main-image" src="/images/ak-47-redline.png" data-image-url="/images/ak-47-redline.png">
<dl>
  <dt>Item Class</dt><dd>Classified Rifle</dd>
  <dt>Type</dt><dd><a href="/types/rifle">Rifle</a></dd>
</dl>
<div class="relative flex px-4 py-2"><span>Factory New</span><span class="font-bold">$45.50</span></div>
<div class="relative flex px-4 py-2"><span>Minimal Wear</span><span class="font-bold">$38.20</span></div>
<div class="relative flex px-4 py-2"><span>Field-Tested</span><span class="font-bold">$32.10</span></div>
<div class="relative flex px-4 py-2"><span>Well-Worn</span><span class="font-bold">$28.50</span></div>
<div class="relative flex px-4 py-2"><span>Battle-Scarred</span><span class="font-bold">$25.00</span></div>
<div class="relative flex px-4 py-2"><span style="color: #f89406">StatTrak</span><span>Factory New</span><span class="font-bold">$1,120.00</span></div>
<div class="relative flex px-4 py-2"><span style="color: #f89406">StatTrak</span><span>Field-Tested</span><span class="font-bold">$80.40</span></div>
<div class="relative flex px-4 py-2"><span style="color: #f89406">StatTrak</span><span>Battle-Scarred</span><span>Not possible</span></div>
<script>
const priceHistory = [["2024-01-01", 1000, 5, 40], ["2024-01-02", 1100, 6, 41], ["2024-01-03", 1200, 7, 42],
  ["2024-01-04", 1300, 8, 43], ["2024-01-05", 1400, 9, 44], ["2024-01-06", 1500, 10, 45],
  ["2024-01-07", 1600, 11, 46], ["2024-01-08", 2000, 12, 47]];
</script>
</body></html>`

func itemDoc(body string) *pricing.Document {
	return &pricing.Document{
		Source:      "csgoskins",
		URL:         "https://csgoskins.gg/items/ak-47-redline",
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(body),
	}
}

func TestExtract_StructuredMatrix(t *testing.T) {
	key := pricing.ItemKey{BaseName: "AK-47 | Redline", Wear: pricing.FieldTested}
	res, err := New().Extract(itemDoc(itemPage), key)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Structured {
		t.Fatal("expected the per-wear path")
	}
	if res.Currency.ISO != "USD" {
		t.Errorf("currency: %+v", res.Currency)
	}

	want := map[pricing.Slot]string{
		{Wear: pricing.FactoryNew}:                 "45.5",
		{Wear: pricing.MinimalWear}:                "38.2",
		{Wear: pricing.FieldTested}:                "32.1",
		{Wear: pricing.WellWorn}:                   "28.5",
		{Wear: pricing.BattleScarred}:              "25",
		{Tracked: true, Wear: pricing.FactoryNew}:  "1120",
		{Tracked: true, Wear: pricing.FieldTested}: "80.4",
	}
	for slot, price := range want {
		got, _, ok := res.Matrix.Lookup(slot)
		if !ok || !got.Equal(dec(price)) {
			t.Errorf("%v: got %s ok=%v, want %s", slot, got, ok, price)
		}
	}
	if _, known, ok := res.Matrix.Lookup(pricing.Slot{Tracked: true, Wear: pricing.BattleScarred}); !known || ok {
		t.Errorf("not possible row: known=%v obtainable=%v", known, ok)
	}
	if _, known, _ := res.Matrix.Lookup(pricing.Slot{Tracked: true, Wear: pricing.WellWorn}); known {
		t.Error("slot without a row must stay unknown")
	}
}

func TestExtract_Metadata(t *testing.T) {
	key := pricing.ItemKey{BaseName: "AK-47 | Redline"}
	res, err := New().Extract(itemDoc(itemPage), key)
	if err != nil {
		t.Fatal(err)
	}
	m := res.Metadata
	if m.ImageURL != "https://csgoskins.gg/images/ak-47-redline.png" {
		t.Errorf("image: %q", m.ImageURL)
	}
	if m.Rarity != "Classified" {
		t.Errorf("rarity: %q", m.Rarity)
	}
	if m.Category != "Rifle" {
		t.Errorf("category: %q", m.Category)
	}
	if m.Weapon != "AK-47" {
		t.Errorf("weapon: %q", m.Weapon)
	}

	h := m.History
	if h == nil {
		t.Fatal("history missing")
	}
	if len(h.Points) != 8 {
		t.Fatalf("points: %d", len(h.Points))
	}
	if !h.AllTimeHigh.Equal(dec("20")) || !h.AllTimeLow.Equal(dec("10")) || !h.Current.Equal(dec("20")) {
		t.Errorf("summary: high=%s low=%s current=%s", h.AllTimeHigh, h.AllTimeLow, h.Current)
	}
	if h.Change7d == nil || *h.Change7d != 81.82 {
		t.Errorf("7d change: %v", h.Change7d)
	}
	if h.Change30d != nil {
		t.Errorf("30d change needs 30 samples, got %v", *h.Change30d)
	}
	if h.Points[0].Volume != 5 || h.Points[7].Listings != 47 {
		t.Errorf("point fields: %+v", h.Points[0])
	}
}

func TestExtract_MetadataIsOptional(t *testing.T) {
	page := `<html><body>
<div class="relative flex px-4 py-2"><span>Field-Tested</span><span class="font-bold">$3.10</span></div>
</body></html>`
	res, err := New().Extract(itemDoc(page), pricing.ItemKey{BaseName: "P250 | Sand Dune"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata.ImageURL != "" || res.Metadata.History != nil {
		t.Errorf("unexpected metadata %+v", res.Metadata)
	}
}

func TestExtract_MixedCurrencyRows(t *testing.T) {
	page := `<html><body>
<div class="relative flex px-4 py-2"><span>Factory New</span><span class="font-bold">$45.50</span></div>
<div class="relative flex px-4 py-2"><span>Minimal Wear</span><span class="font-bold">38,20€</span></div>
</body></html>`
	_, err := New().Extract(itemDoc(page), pricing.ItemKey{BaseName: "AK-47 | Redline"})
	if !errors.Is(err, pricing.ErrExtractMalformed) {
		t.Fatalf("got %v", err)
	}
}

func TestExtract_ScanFallback(t *testing.T) {
	page := `<html><body>
<div class="market_listing_row"><span class="normal_price">$10.00 USD</span></div>
<div class="market_listing_row"><span class="normal_price">$11.00 USD</span></div>
<div class="market_listing_row"><span class="normal_price">$9.00 USD</span></div>
<div class="market_listing_row"><span class="normal_price">$1,000.00 USD</span></div>
<div class="market_listing_row"><span>Listed for 3,50€ elsewhere</span></div>
<script>var g_rgAssets = {"price": "$0.01"};</script>
</body></html>`
	key := pricing.ItemKey{BaseName: "AK-47 | Redline", Wear: pricing.FieldTested}
	res, err := New().Extract(itemDoc(page), key)
	if err != nil {
		t.Fatal(err)
	}
	if res.Structured {
		t.Error("listing page has no per-wear rows")
	}
	if len(res.Matrix) != 1 {
		t.Fatalf("fallback should fill one slot, got %v", res.Matrix.Slots())
	}
	got, _, ok := res.Matrix.Lookup(key.Slot())
	if !ok || !got.Equal(dec("9")) {
		t.Errorf("got %s, want 9", got)
	}
	if res.Currency.Code != 1 {
		t.Errorf("predominant currency: %+v", res.Currency)
	}
}

func TestExtract_WearlessItemUsesFlatSlot(t *testing.T) {
	page := `<html><body><p>Starting at</p><p>R$ 4,20</p><p>R$ 4,35</p></body></html>`
	key := pricing.ItemKey{BaseName: "Operation Broken Fang Case"}
	res, err := New().Extract(itemDoc(page), key)
	if err != nil {
		t.Fatal(err)
	}
	got, _, ok := res.Matrix.Lookup(pricing.Slot{})
	if !ok || !got.Equal(dec("4.2")) {
		t.Errorf("got %s", got)
	}
	if res.Currency.ISO != "BRL" {
		t.Errorf("currency %+v", res.Currency)
	}
}

func TestExtract_CurrencyTie(t *testing.T) {
	page := `<html><body><p>$5.00</p><p>5,10€</p></body></html>`
	_, err := New().Extract(itemDoc(page), pricing.ItemKey{BaseName: "x"})
	if !errors.Is(err, pricing.ErrExtractMalformed) {
		t.Fatalf("got %v", err)
	}
}

func TestExtract_NoPrice(t *testing.T) {
	for name, doc := range map[string]*pricing.Document{
		"html":  itemDoc(`<html><body><h1>There are no listings for this item.</h1></body></html>`),
		"empty": itemDoc(""),
		"json":  {Source: "priceoverview", ContentType: "application/json", Body: []byte(`{"success":false}`)},
	} {
		_, err := New().Extract(doc, pricing.ItemKey{BaseName: "x"})
		if !errors.Is(err, pricing.ErrPriceUnavailable) {
			t.Errorf("%s: got %v", name, err)
		}
	}
}

func TestExtract_PriceOverviewJSON(t *testing.T) {
	doc := &pricing.Document{
		Source:      "priceoverview",
		ContentType: "application/json; charset=utf-8",
		Body:        []byte(`{"success":true,"lowest_price":"1,23€","volume":"1,024","median_price":"1,50€"}`),
	}
	key := pricing.ItemKey{BaseName: "AK-47 | Redline", Wear: pricing.MinimalWear, Tracked: true}
	res, err := New().Extract(doc, key)
	if err != nil {
		t.Fatal(err)
	}
	got, _, ok := res.Matrix.Lookup(key.Slot())
	if !ok || !got.Equal(dec("1.23")) {
		t.Errorf("got %s", got)
	}
	if res.Currency.ISO != "EUR" {
		t.Errorf("currency %+v", res.Currency)
	}

	doc.Body = []byte(`{"success":true,"lowest_price":`)
	if _, err := New().Extract(doc, key); !errors.Is(err, pricing.ErrExtractMalformed) {
		t.Errorf("truncated json: got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	cases := []struct {
		name string
		in   []decimal.Decimal
		want string
	}{
		{"high outlier excluded", decs("10", "11", "9", "1000"), "9"},
		{"low outlier replaced by median", decs("0.5", "20", "21", "22"), "20.5"},
		{"two readings keep lowest", decs("0.5", "20"), "0.5"},
		{"single", decs("7.25"), "7.25"},
		{"odd count median", decs("1", "30", "31", "32", "33"), "31"},
	}
	for _, tc := range cases {
		got, err := Reconcile(tc.in)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !got.Equal(dec(tc.want)) {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
	if _, err := Reconcile(nil); err == nil {
		t.Error("empty input should fail")
	}
}

func TestParseAmount(t *testing.T) {
	usd, _ := CurrencyBySymbol("$")
	eur, _ := CurrencyBySymbol("€")
	brl, _ := CurrencyBySymbol("R$")

	ok := []struct {
		c    Currency
		in   string
		want string
	}{
		{usd, "1,234.56", "1234.56"},
		{usd, "0.03", "0.03"},
		{eur, "1.234,56", "1234.56"},
		{brl, "10,50", "10.5"},
	}
	for _, tc := range ok {
		got, err := ParseAmount(tc.c, tc.in)
		if err != nil {
			t.Fatalf("%s %q: %v", tc.c.ISO, tc.in, err)
		}
		if !got.Equal(dec(tc.want)) {
			t.Errorf("%s %q: got %s", tc.c.ISO, tc.in, got)
		}
	}

	for _, in := range []string{"0.001", "200000", "abc"} {
		if _, err := ParseAmount(usd, in); err == nil {
			t.Errorf("%q should be rejected", in)
		}
	}
}

func TestFindObservations(t *testing.T) {
	obs := FindObservations("from $3.10 or R$ 15,90 or 2,99€ or ¥ 21.5 or 120₽ or £2", "test")
	var got []string
	for _, o := range obs {
		got = append(got, o.Amount.String())
	}
	want := "3.1 15.9 21.5 2 2.99 120"
	if strings.Join(got, " ") != want {
		t.Errorf("got %v, want %s", got, want)
	}
	// R$ must not be read as dollars
	for _, o := range obs {
		if o.Amount.Equal(dec("15.9")) && o.CurrencyCode != 7 {
			t.Errorf("R$ amount tagged %d", o.CurrencyCode)
		}
	}
}

func TestParseHistory_Absent(t *testing.T) {
	h, err := ParseHistory([]byte("<html></html>"))
	if err != nil || h != nil {
		t.Fatalf("got %v, %v", h, err)
	}
	if _, err := ParseHistory([]byte("const priceHistory = [[\"2024-01-01\", 100")); err == nil {
		t.Error("unterminated array should fail")
	}
}
