package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"harga-pangan/database"
	models "harga-pangan/database/models_pkg"
	"harga-pangan/engine"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// priceListResponse is one page of daily prices
type priceListResponse struct {
	Items []models.DailyPrice `json:"items"`
	Total int64               `json:"total"`
	Skip  int                 `json:"skip"`
	Take  int                 `json:"take"`
}

func (s *Server) handleListDailyPrices(w http.ResponseWriter, r *http.Request) {
	filter, err := parsePriceFilter(r)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}

	items, total, err := s.deps.Prices.List(r.Context(), filter)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if items == nil {
		items = []models.DailyPrice{}
	}

	writeJSON(w, http.StatusOK, priceListResponse{
		Items: items,
		Total: total,
		Skip:  filter.Skip,
		Take:  filter.Take,
	})
}

// parsePriceFilter reads listing filters. skip defaults to 0, take to 20 (max 100).
func parsePriceFilter(r *http.Request) (models.PriceFilter, error) {
	var filter models.PriceFilter
	var err error

	if filter.ProvinceID, err = optionalID(r, "province_id", "provinceId", "province_id"); err != nil {
		return filter, err
	}
	if filter.RegencyID, err = optionalID(r, "regency_id", "regencyId", "regency_id"); err != nil {
		return filter, err
	}
	if filter.CommodityID, err = optionalID(r, "commodity_id", "commodityId", "commodity_id"); err != nil {
		return filter, err
	}
	if filter.DateFrom, err = optionalDate(r, "date_from", "dateFrom", "date_from"); err != nil {
		return filter, err
	}
	if filter.DateTo, err = optionalDate(r, "date_to", "dateTo", "date_to"); err != nil {
		return filter, err
	}

	minSkip, minTake, maxTake := 0, 1, maxPageSize
	filter.Skip = getIntParam(r, "skip", 0, &minSkip, nil)
	filter.Take = getIntParam(r, "take", defaultPageSize, &minTake, &maxTake)
	return filter, nil
}

// manualPriceRequest is the body of POST /api/prices/daily
type manualPriceRequest struct {
	ProvinceID  int64           `json:"province_id"`
	RegencyID   int64           `json:"regency_id"`
	CommodityID int64           `json:"commodity_id"`
	Date        string          `json:"date"`
	Price       decimal.Decimal `json:"price"`
	Source      string          `json:"source"`
}

func (s *Server) handleCreateDailyPrice(w http.ResponseWriter, r *http.Request) {
	var body manualPriceRequest
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, err, nil)
		return
	}

	req := engine.ManualEntryRequest{
		ProvinceID:  body.ProvinceID,
		RegencyID:   body.RegencyID,
		CommodityID: body.CommodityID,
		Price:       body.Price,
		Source:      body.Source,
	}
	if body.Date != "" {
		date, err := parseDateField("date", body.Date)
		if err != nil {
			respondWithError(w, err, nil)
			return
		}
		req.Date = *date
	}

	price, err := s.deps.Manual.Record(r.Context(), req)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, price)
}

// generateRequest is the body of POST /api/prices/predictions/generate
type generateRequest struct {
	ProvinceID  int64  `json:"province_id"`
	RegencyID   int64  `json:"regency_id"`
	CommodityID int64  `json:"commodity_id"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
}

func (s *Server) handleGeneratePredictions(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := decodeBody(r, &body); err != nil {
		respondWithError(w, err, nil)
		return
	}

	req := engine.GenerateRequest{
		ProvinceID:  body.ProvinceID,
		RegencyID:   body.RegencyID,
		CommodityID: body.CommodityID,
	}
	if body.StartDate != "" {
		start, err := parseDateField("start_date", body.StartDate)
		if err != nil {
			respondWithError(w, err, nil)
			return
		}
		req.StartDate = *start
	}
	if body.EndDate != "" {
		end, err := parseDateField("end_date", body.EndDate)
		if err != nil {
			respondWithError(w, err, nil)
			return
		}
		req.EndDate = *end
	}

	predictions, err := s.deps.Generator.Generate(r.Context(), req)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, predictions)
}

func (s *Server) handleListPredictions(w http.ResponseWriter, r *http.Request) {
	provinceID, err := requiredID(r, "province_id", "provinceId", "province_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	regencyID, err := requiredID(r, "regency_id", "regencyId", "regency_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	commodityID, err := requiredID(r, "commodity_id", "commodityId", "commodity_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}

	var from, to time.Time
	if d, err := optionalDate(r, "start_date", "startDate", "start_date"); err != nil {
		respondWithError(w, err, nil)
		return
	} else if d != nil {
		from = *d
	}
	if d, err := optionalDate(r, "end_date", "endDate", "end_date"); err != nil {
		respondWithError(w, err, nil)
		return
	} else if d != nil {
		to = *d
	}

	items, err := s.deps.Predictions.List(r.Context(), provinceID, regencyID, commodityID, from, to)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if items == nil {
		items = []models.PricePrediction{}
	}
	writeJSON(w, http.StatusOK, items)
}

// handleExportPricesCSV streams the raw observations of one commodity for a date range
func (s *Server) handleExportPricesCSV(w http.ResponseWriter, r *http.Request) {
	commodityID, err := requiredID(r, "commodity_id", "commodityId", "commodity_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	provinceID, err := optionalID(r, "province_id", "provinceId", "province_id")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	start, err := optionalDate(r, "start_date", "startDate", "start_date")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	end, err := optionalDate(r, "end_date", "endDate", "end_date")
	if err != nil {
		respondWithError(w, err, nil)
		return
	}
	if start == nil || end == nil {
		respondWithError(w, database.NewValidationError("start_date", "start_date and end_date are required"), nil)
		return
	}
	if start.After(*end) {
		respondWithError(w, database.NewValidationErrorWithValue("start_date", "must not be after end_date", start.Format("2006-01-02")), nil)
		return
	}

	rows, err := s.deps.Prices.ListRange(r.Context(), commodityID, provinceID, *start, *end)
	if err != nil {
		respondWithError(w, err, nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment;filename=prices_%d_%s_%s.csv",
		commodityID, start.Format("20060102"), end.Format("20060102")))

	writer := csv.NewWriter(w)
	defer writer.Flush()

	// Header
	writer.Write([]string{"date", "province_code", "province", "regency_code", "regency", "commodity", "unit", "price", "source"})

	// Rows
	for _, row := range rows {
		var provinceCode, provinceName, regencyCode, regencyName, commodity, unit string
		if row.Province != nil {
			provinceCode, provinceName = row.Province.Code, row.Province.Name
		} else {
			provinceCode = strconv.FormatInt(row.ProvinceID, 10)
		}
		if row.Regency != nil {
			regencyCode, regencyName = row.Regency.Code, row.Regency.Name
		} else {
			regencyCode = strconv.FormatInt(row.RegencyID, 10)
		}
		if row.Commodity != nil {
			commodity, unit = row.Commodity.Name, row.Commodity.Unit
		} else {
			commodity = strconv.FormatInt(row.CommodityID, 10)
		}

		writer.Write([]string{
			row.Date.Format("2006-01-02"),
			provinceCode,
			provinceName,
			regencyCode,
			regencyName,
			commodity,
			unit,
			row.Price.StringFixed(2),
			row.Source,
		})
	}
}
