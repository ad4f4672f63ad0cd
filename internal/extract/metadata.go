package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"csgo-pricer/internal/pricing"
)

var rarities = []string{"Classified", "Covert", "Restricted", "Mil-Spec", "Consumer", "Exceedingly Rare", "Legendary"}

var itemTypes = []string{"sniper rifle", "rifle", "pistol", "knife", "gloves", "smg", "shotgun", "machinegun"}

// metadata collects the best-effort fields. Nothing here can fail the
// extraction.
func metadata(doc *goquery.Document, key pricing.ItemKey, pageURL string) pricing.Metadata {
	lines := textLines(doc.Find("body").Nodes)
	return pricing.Metadata{
		ImageURL: imageURL(doc, pageURL),
		Rarity:   rarity(doc, lines),
		Category: category(doc, lines),
		Weapon:   weapon(doc, key.BaseName),
	}
}

func imageURL(doc *goquery.Document, pageURL string) string {
	img := doc.Find("img#main-image").First()
	if img.Length() == 0 {
		return ""
	}
	src, _ := img.Attr("src")
	if src == "" {
		src, _ = img.Attr("data-image-url")
	}
	if src == "" {
		return ""
	}
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return src
	}
	ref, err := url.Parse(src)
	if err != nil {
		return src
	}
	return base.ResolveReference(ref).String()
}

func rarity(doc *goquery.Document, lines []string) string {
	if v := valueAfter(lines, "item class"); v != "" {
		if r := matchRarity(v); r != "" {
			return r
		}
	}
	var found string
	doc.Find(`a[href*="/rarities/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		found = matchRarity(s.Text())
		return found == ""
	})
	return found
}

func matchRarity(text string) string {
	lower := strings.ToLower(text)
	for _, r := range rarities {
		if strings.Contains(lower, strings.ToLower(r)) {
			return r
		}
	}
	return ""
}

func category(doc *goquery.Document, lines []string) string {
	if v := valueAfter(lines, "type"); isItemType(v) {
		return v
	}
	var found string
	doc.Find(`a[href*="/types/"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := strings.TrimSpace(s.Text()); isItemType(t) {
			found = t
		}
		return found == ""
	})
	if found != "" {
		return found
	}
	return valueAfter(lines, "category")
}

func isItemType(v string) bool {
	lower := strings.ToLower(v)
	for _, t := range itemTypes {
		if lower == t {
			return true
		}
	}
	return false
}

// weapon prefers the /weapons/ link that names the weapon in the base name.
func weapon(doc *goquery.Document, baseName string) string {
	want := baseName
	if i := strings.Index(baseName, "|"); i >= 0 {
		want = baseName[:i]
	}
	want = normalizeWeapon(strings.TrimPrefix(strings.TrimSpace(want), "★ "))

	var exact, partial, first string
	doc.Find(`a[href*="/weapons/"]`).Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		got := normalizeWeapon(text)
		switch {
		case want != "" && got == want:
			if exact == "" {
				exact = text
			}
		case want != "" && (strings.Contains(got, want) || strings.Contains(want, got)):
			if partial == "" {
				partial = text
			}
		case first == "" && len(text) <= 30:
			first = text
		}
	})
	switch {
	case exact != "":
		return exact
	case partial != "":
		return partial
	}
	return first
}

func normalizeWeapon(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, " ", "-")
}

// valueAfter returns the line following a label line, as summary tables
// render "Label" and "Value" in sibling cells.
func valueAfter(lines []string, label string) string {
	for i, l := range lines {
		if strings.EqualFold(l, label) && i+1 < len(lines) {
			return lines[i+1]
		}
	}
	return ""
}

// textLines flattens the visible text under nodes, one entry per text
// node, skipping scripts and styles.
func textLines(nodes []*html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "noscript") {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				out = append(out, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}
