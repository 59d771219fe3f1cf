package govapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Row-level extraction failures. They are counted as skips by the sync engine.
var (
	ErrMissingField = errors.New("govapi: missing field")
	ErrBadDate      = errors.New("govapi: unparseable date")
	ErrBadPrice     = errors.New("govapi: non-positive or non-numeric price")
)

// FieldMap lists, per logical field, the accepted key spellings in priority order
type FieldMap struct {
	ProvinceCode []string `yaml:"province_code"`
	RegencyCode  []string `yaml:"regency_code"`
	CommodityID  []string `yaml:"commodity_id"`
	Date         []string `yaml:"date"`
	Price        []string `yaml:"price"`
}

// DefaultFieldMap returns the spellings seen across deployments of the pricing API
func DefaultFieldMap() FieldMap {
	return FieldMap{
		ProvinceCode: []string{"kode_provinsi", "province_code", "provinceCode"},
		RegencyCode:  []string{"kode_kabupaten", "regency_code", "regencyCode"},
		CommodityID:  []string{"id_komoditas", "commodity_id", "commodityId"},
		Date:         []string{"tanggal", "date"},
		Price:        []string{"harga", "price"},
	}
}

// LoadFieldMap reads a YAML override file. Fields absent from the file keep their defaults.
func LoadFieldMap(path string) (FieldMap, error) {
	fields := DefaultFieldMap()
	if path == "" {
		return fields, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fields, fmt.Errorf("read field map: %w", err)
	}

	var override FieldMap
	if err := yaml.Unmarshal(raw, &override); err != nil {
		return fields, fmt.Errorf("parse field map: %w", err)
	}

	if len(override.ProvinceCode) > 0 {
		fields.ProvinceCode = override.ProvinceCode
	}
	if len(override.RegencyCode) > 0 {
		fields.RegencyCode = override.RegencyCode
	}
	if len(override.CommodityID) > 0 {
		fields.CommodityID = override.CommodityID
	}
	if len(override.Date) > 0 {
		fields.Date = override.Date
	}
	if len(override.Price) > 0 {
		fields.Price = override.Price
	}
	return fields, nil
}

// Record is a normalized pricing API row, before reference resolution
type Record struct {
	ProvinceCode string
	RegencyCode  string
	CommodityID  string
	Date         time.Time
	Price        decimal.Decimal
}

// Extract normalizes one raw row. The returned error wraps ErrMissingField,
// ErrBadDate or ErrBadPrice.
func (f FieldMap) Extract(row map[string]any) (Record, error) {
	var rec Record
	var ok bool

	if rec.ProvinceCode, ok = getString(row, f.ProvinceCode...); !ok {
		return rec, fmt.Errorf("%w: province code", ErrMissingField)
	}
	if rec.RegencyCode, ok = getString(row, f.RegencyCode...); !ok {
		return rec, fmt.Errorf("%w: regency code", ErrMissingField)
	}
	if rec.CommodityID, ok = getString(row, f.CommodityID...); !ok {
		return rec, fmt.Errorf("%w: commodity id", ErrMissingField)
	}
	dateRaw, ok := getString(row, f.Date...)
	if !ok {
		return rec, fmt.Errorf("%w: date", ErrMissingField)
	}
	priceRaw, ok := getValue(row, f.Price...)
	if !ok {
		return rec, fmt.Errorf("%w: price", ErrMissingField)
	}

	date, err := ParseDate(dateRaw)
	if err != nil {
		return rec, err
	}
	rec.Date = date

	price, err := parsePrice(priceRaw)
	if err != nil {
		return rec, err
	}
	rec.Price = price
	return rec, nil
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02-01-2006",
	"02/01/2006",
}

// ParseDate parses a calendar day and truncates it to UTC midnight
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadDate, raw)
}

func parsePrice(raw any) (decimal.Decimal, error) {
	var price decimal.Decimal
	switch typed := raw.(type) {
	case json.Number:
		d, err := decimal.NewFromString(typed.String())
		if err != nil {
			return price, fmt.Errorf("%w: %v", ErrBadPrice, raw)
		}
		price = d
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return price, fmt.Errorf("%w: %v", ErrBadPrice, raw)
		}
		price = decimal.NewFromFloat(typed)
	case int:
		price = decimal.NewFromInt(int64(typed))
	case int64:
		price = decimal.NewFromInt(typed)
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(typed))
		if err != nil {
			return price, fmt.Errorf("%w: %q", ErrBadPrice, typed)
		}
		price = d
	default:
		return price, fmt.Errorf("%w: %v", ErrBadPrice, raw)
	}
	return NormalizePrice(price)
}

// Stored prices are decimal(15,2): two fractional and thirteen integer digits.
const priceScale = 2

var priceCeiling = decimal.New(1, 13)

// NormalizePrice rounds to the stored scale and rejects amounts the price
// columns cannot hold. The returned error wraps ErrBadPrice.
func NormalizePrice(price decimal.Decimal) (decimal.Decimal, error) {
	rounded := price.Round(priceScale)
	if !rounded.IsPositive() || rounded.GreaterThanOrEqual(priceCeiling) {
		return price, fmt.Errorf("%w: %s", ErrBadPrice, price.String())
	}
	return rounded, nil
}

// getValue returns the first non-null value among keys, in order
func getValue(row map[string]any, keys ...string) (any, bool) {
	for _, key := range keys {
		if value, ok := row[key]; ok && value != nil {
			return value, true
		}
	}
	return nil, false
}

func getString(row map[string]any, keys ...string) (string, bool) {
	value, ok := getValue(row, keys...)
	if !ok {
		return "", false
	}
	switch typed := value.(type) {
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return "", false
		}
		return trimmed, true
	case json.Number:
		return typed.String(), true
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64), true
	case int:
		return strconv.Itoa(typed), true
	case int64:
		return strconv.FormatInt(typed, 10), true
	default:
		return "", false
	}
}
