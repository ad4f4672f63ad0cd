package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/xuri/excelize/v2"

	"csgo-pricer/internal/pricing"
	"csgo-pricer/internal/store"
)

const (
	pricesSheet  = "Prices"
	historySheet = "History"
)

var priceHeader = []any{"Item", "Base name", "StatTrak", "Wear", "Price", "Currency", "Source currency", "Source", "Last updated", "Updates"}

// writeReport pages through every stored record and writes one row per
// matrix slot. It returns the number of records written.
func writeReport(ctx context.Context, st store.Store, path string, pageSize int) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", pricesSheet); err != nil {
		return 0, err
	}
	if _, err := f.NewSheet(historySheet); err != nil {
		return 0, err
	}
	if err := f.SetSheetRow(pricesSheet, "A1", &priceHeader); err != nil {
		return 0, err
	}
	if err := f.SetSheetRow(historySheet, "A1", &[]any{"Base name", "Date", "Price", "Volume", "Listings"}); err != nil {
		return 0, err
	}
	_ = f.SetColWidth(pricesSheet, "A", "B", 42)
	_ = f.SetPanes(pricesSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	row, hrow, records := 2, 2, 0
	for offset := 0; ; offset += pageSize {
		recs, err := st.List(ctx, offset, pageSize)
		if err != nil {
			return records, fmt.Errorf("list records at %d: %w", offset, err)
		}
		for _, rec := range recs {
			for _, r := range slotRows(rec) {
				cell, _ := excelize.CoordinatesToCellName(1, row)
				if err := f.SetSheetRow(pricesSheet, cell, &r); err != nil {
					return records, err
				}
				row++
			}
			if h := rec.Metadata.History; h != nil {
				for _, p := range h.Points {
					cell, _ := excelize.CoordinatesToCellName(1, hrow)
					v := []any{rec.BaseName, p.Date.Format("2006-01-02"), p.Price.InexactFloat64(), p.Volume, p.Listings}
					if err := f.SetSheetRow(historySheet, cell, &v); err != nil {
						return records, err
					}
					hrow++
				}
			}
			records++
		}
		if len(recs) < pageSize {
			break
		}
	}

	if err := f.SaveAs(path); err != nil {
		return records, fmt.Errorf("save %s: %w", path, err)
	}
	return records, nil
}

// slotRows renders one spreadsheet row per known slot, normal before
// StatTrak and wears in catalog order.
func slotRows(rec *pricing.PriceRecord) [][]any {
	slots := rec.Matrix.Slots()
	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Tracked != slots[j].Tracked {
			return !slots[i].Tracked
		}
		return slots[i].Wear < slots[j].Wear
	})

	rows := make([][]any, 0, len(slots))
	for _, s := range slots {
		key := pricing.ItemKey{BaseName: rec.BaseName, Wear: s.Wear, Tracked: s.Tracked}
		var price any = "not obtainable"
		if p, _, ok := rec.Matrix.Lookup(s); ok {
			price = p.InexactFloat64()
		}
		rows = append(rows, []any{
			key.MarketHashName(), rec.BaseName, s.Tracked, s.Wear.String(), price,
			rec.Currency, rec.SourceCurrency, rec.Source,
			rec.LastUpdated.UTC().Format("2006-01-02 15:04:05"), rec.UpdateCount,
		})
	}
	return rows
}
