package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Price is a wrapper around shopspring/decimal to allow for custom data type mapping
type Price struct {
	decimal.Decimal
}

// NewPrice parses a decimal price such as "12.50"
func NewPrice(value string) (Price, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Price{}, err
	}
	return Price{d.Round(2)}, nil
}

// Value promotes the embedded Decimal's Value method
func (p Price) Value() (driver.Value, error) {
	return p.Decimal.Value()
}

// Scan promotes the embedded Decimal's Scan method
func (p *Price) Scan(value interface{}) error {
	return p.Decimal.Scan(value)
}

// MarshalJSON renders the price with two fractional digits, as a string
func (p Price) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.StringFixed(2))
}

// GormDBDataType keeps two fractional digits on every driver.
// SQLite has no fixed point type, so the value is stored as text to avoid float rounding.
func (Price) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "mysql", "postgres", "sqlserver", "mssql":
		return "DECIMAL(10,2)"
	case "sqlite":
		return "TEXT"
	}
	return "DECIMAL(10,2)"
}
