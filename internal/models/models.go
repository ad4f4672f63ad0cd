package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// SkinPrice is one persisted price record per (base name, currency, app).
// DetailedData holds the full price matrix and metadata as JSON.
type SkinPrice struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	MarketHashName string          `json:"market_hash_name" gorm:"size:255;not null;uniqueIndex:idx_skin_price_key,priority:1"`
	Currency       int             `json:"currency" gorm:"not null;uniqueIndex:idx_skin_price_key,priority:2"`
	AppID          int             `json:"app_id" gorm:"not null;default:730;uniqueIndex:idx_skin_price_key,priority:3"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	SourceCurrency string          `json:"source_currency" gorm:"size:8"`
	Source         string          `json:"source" gorm:"size:32"`
	ImageURL       string          `json:"image_url" gorm:"size:512"`
	DetailedData   datatypes.JSON  `json:"detailed_data"`
	LastUpdated    time.Time       `json:"last_updated" gorm:"index"`
	LastScraped    time.Time       `json:"last_scraped"`
	UpdateCount    int             `json:"update_count" gorm:"not null;default:0"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (SkinPrice) TableName() string { return "skin_prices" }

// SkinPriceHistory holds one daily sample per item.
type SkinPriceHistory struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	MarketHashName string          `json:"market_hash_name" gorm:"size:255;not null;uniqueIndex:idx_history_day,priority:1"`
	Date           datatypes.Date  `json:"date" gorm:"not null;uniqueIndex:idx_history_day,priority:2"`
	Price          decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	Volume         int             `json:"volume"`
	Listings       int             `json:"listings"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (SkinPriceHistory) TableName() string { return "skin_price_history" }

// Metadata is a small key/value table for process bookkeeping such as the
// time of the last bulk refresh.
type Metadata struct {
	Key       string    `json:"key" gorm:"primaryKey;size:64"`
	Value     string    `json:"value" gorm:"type:text"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Metadata) TableName() string { return "metadata" }

// All lists the models migrated at startup.
func All() []any {
	return []any{&SkinPrice{}, &SkinPriceHistory{}, &Metadata{}}
}
