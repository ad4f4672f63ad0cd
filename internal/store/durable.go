package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"csgo-pricer/internal/models"
	"csgo-pricer/internal/pricing"
)

// detail is the JSON blob stored alongside the scalar columns.
type detail struct {
	Prices   pricing.PriceMatrix `json:"prices"`
	Metadata pricing.Metadata    `json:"metadata"`
}

// DurableStore persists records through gorm.
type DurableStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewDurableStore(db *gorm.DB) *DurableStore {
	return &DurableStore{db: db, now: time.Now}
}

// Ping checks the connection.
func (s *DurableStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

var keyColumns = []clause.Column{{Name: "market_hash_name"}, {Name: "currency"}, {Name: "app_id"}}

func (s *DurableStore) Get(ctx context.Context, key pricing.RecordKey) (*pricing.PriceRecord, error) {
	var row models.SkinPrice
	err := s.db.WithContext(ctx).
		Where("market_hash_name = ? AND currency = ? AND app_id = ?", key.BaseName, key.Currency, key.Catalog).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key.BaseName, err)
	}
	return fromRow(&row)
}

func (s *DurableStore) Put(ctx context.Context, rec *pricing.PriceRecord) (*pricing.PriceRecord, error) {
	row, err := toRow(rec)
	if err != nil {
		return nil, err
	}
	row.UpdateCount = 1

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns: keyColumns,
			DoUpdates: clause.Assignments(map[string]any{
				"price":           row.Price,
				"source_currency": row.SourceCurrency,
				"source":          row.Source,
				"image_url":       row.ImageURL,
				"detailed_data":   row.DetailedData,
				"last_updated":    row.LastUpdated,
				"last_scraped":    row.LastScraped,
				"update_count":    gorm.Expr("skin_prices.update_count + 1"),
				"updated_at":      s.now(),
			}),
		}).Create(row).Error
		if err != nil {
			return fmt.Errorf("upsert %s: %w", rec.BaseName, err)
		}
		if h := rec.Metadata.History; h != nil && len(h.Points) > 0 {
			if err := upsertHistory(tx, rec.BaseName, h.Points); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, rec.Key())
}

func upsertHistory(tx *gorm.DB, baseName string, points []pricing.HistoryPoint) error {
	rows := make([]models.SkinPriceHistory, 0, len(points))
	for _, p := range points {
		rows = append(rows, models.SkinPriceHistory{
			MarketHashName: baseName,
			Date:           datatypes.Date(dayOf(p.Date)),
			Price:          p.Price,
			Volume:         p.Volume,
			Listings:       p.Listings,
		})
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "market_hash_name"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"price", "volume", "listings"}),
	}).CreateInBatches(rows, 200).Error
	if err != nil {
		return fmt.Errorf("upsert history for %s: %w", baseName, err)
	}
	return nil
}

func (s *DurableStore) ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]*pricing.PriceRecord, error) {
	q := s.db.WithContext(ctx).
		Where("last_updated < ?", s.now().Add(-olderThan)).
		Order("last_updated ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.SkinPrice
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	return fromRows(rows)
}

func (s *DurableStore) List(ctx context.Context, offset, limit int) ([]*pricing.PriceRecord, error) {
	q := s.db.WithContext(ctx).Order("market_hash_name ASC, currency ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.SkinPrice
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return fromRows(rows)
}

func (s *DurableStore) TouchFetchAttempt(ctx context.Context, key pricing.RecordKey, at time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.SkinPrice{}).
		Where("market_hash_name = ? AND currency = ? AND app_id = ?", key.BaseName, key.Currency, key.Catalog).
		Update("last_scraped", at).Error
	if err != nil {
		return fmt.Errorf("touch %s: %w", key.BaseName, err)
	}
	return nil
}

func (s *DurableStore) History(ctx context.Context, baseName string, since time.Time) ([]pricing.HistoryPoint, error) {
	var rows []models.SkinPriceHistory
	err := s.db.WithContext(ctx).
		Where("market_hash_name = ? AND date >= ?", baseName, datatypes.Date(dayOf(since))).
		Order("date ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", baseName, err)
	}
	out := make([]pricing.HistoryPoint, len(rows))
	for i, r := range rows {
		out[i] = pricing.HistoryPoint{Date: dayOf(time.Time(r.Date)), Price: r.Price, Volume: r.Volume, Listings: r.Listings}
	}
	return out, nil
}

func (s *DurableStore) SetMeta(ctx context.Context, key, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&models.Metadata{Key: key, Value: value, UpdatedAt: s.now()}).Error
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *DurableStore) GetMeta(ctx context.Context, key string) (string, time.Time, error) {
	var m models.Metadata
	err := s.db.WithContext(ctx).Where(&models.Metadata{Key: key}).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", time.Time{}, ErrNotFound
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("get %s: %w", key, err)
	}
	return m.Value, m.UpdatedAt, nil
}

func (s *DurableStore) Stats(ctx context.Context, staleAfter time.Duration) (Stats, error) {
	st := Stats{Mode: ModeConnected}
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.SkinPrice{}).Count(&st.Records).Error; err != nil {
		return st, fmt.Errorf("count records: %w", err)
	}
	if err := db.Model(&models.SkinPrice{}).Where("last_updated < ?", s.now().Add(-staleAfter)).Count(&st.Stale).Error; err != nil {
		return st, fmt.Errorf("count stale: %w", err)
	}
	if err := db.Model(&models.SkinPriceHistory{}).Count(&st.HistoryPoints).Error; err != nil {
		return st, fmt.Errorf("count history: %w", err)
	}
	return st, nil
}

func toRow(rec *pricing.PriceRecord) (*models.SkinPrice, error) {
	blob, err := json.Marshal(detail{Prices: rec.Matrix, Metadata: rec.Metadata})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.BaseName, err)
	}
	return &models.SkinPrice{
		MarketHashName: rec.BaseName,
		Currency:       rec.Currency,
		AppID:          rec.Catalog,
		Price:          rec.ResolvedPrice,
		SourceCurrency: rec.SourceCurrency,
		Source:         rec.Source,
		ImageURL:       rec.Metadata.ImageURL,
		DetailedData:   datatypes.JSON(blob),
		LastUpdated:    rec.LastUpdated,
		LastScraped:    rec.LastFetchAttempt,
	}, nil
}

func fromRow(row *models.SkinPrice) (*pricing.PriceRecord, error) {
	var d detail
	if len(row.DetailedData) > 0 {
		if err := json.Unmarshal(row.DetailedData, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", row.MarketHashName, err)
		}
	}
	if d.Prices == nil {
		d.Prices = pricing.PriceMatrix{}
	}
	if d.Metadata.ImageURL == "" {
		d.Metadata.ImageURL = row.ImageURL
	}
	return &pricing.PriceRecord{
		BaseName:         row.MarketHashName,
		Currency:         row.Currency,
		Catalog:          row.AppID,
		ResolvedPrice:    row.Price,
		Matrix:           d.Prices,
		SourceCurrency:   row.SourceCurrency,
		Source:           row.Source,
		Metadata:         d.Metadata,
		LastUpdated:      row.LastUpdated,
		LastFetchAttempt: row.LastScraped,
		UpdateCount:      row.UpdateCount,
	}, nil
}

func fromRows(rows []models.SkinPrice) ([]*pricing.PriceRecord, error) {
	out := make([]*pricing.PriceRecord, 0, len(rows))
	for i := range rows {
		rec, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
