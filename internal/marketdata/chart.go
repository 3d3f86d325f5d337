package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/hskang/krx-signals/internal/model"
)

const (
	apiIDDailyChart = "ka10081"
	chartPath       = "/api/dostk/chart"
)

type chartRequest struct {
	StockCode       string `json:"stk_cd"`
	BaseDate        string `json:"base_dt"`
	AdjustedPriceTp string `json:"upd_stkpc_tp"`
}

type chartRow struct {
	Date   string `json:"dt"`
	Close  string `json:"cur_prc"`
	High   string `json:"high_pric"`
	Low    string `json:"low_pric"`
	Open   string `json:"open_pric"`
	Volume string `json:"trde_qty"`
}

type chartResponse struct {
	Rows []chartRow `json:"stk_dt_pole_chart_qry"`
}

// DailyHistory fetches up to days of daily candles for the instrument,
// adjusted for corporate actions, returned oldest first. The broker reports
// newest first with signed prices, both of which are normalized here.
func (c *Client) DailyHistory(ctx context.Context, ticker string, baseDate time.Time, days int) ([]model.PricePoint, error) {
	var resp chartResponse
	err := c.post(ctx, chartPath, apiIDDailyChart, chartRequest{
		StockCode:       ticker,
		BaseDate:        baseDate.Format("20060102"),
		AdjustedPriceTp: "1",
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("daily chart %s: %w", ticker, err)
	}

	rows := resp.Rows
	if days > 0 && len(rows) > days {
		rows = rows[:days]
	}

	points := make([]model.PricePoint, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		p, err := rows[i].toPricePoint()
		if err != nil {
			return nil, fmt.Errorf("daily chart %s: %w", ticker, err)
		}
		points = append(points, p)
	}
	return points, nil
}

// Quote fetches the latest candle for the instrument. During a session this
// is the live row: current price, session low/high and cumulative volume.
func (c *Client) Quote(ctx context.Context, ticker string, baseDate time.Time) (model.Quote, error) {
	var resp chartResponse
	err := c.post(ctx, chartPath, apiIDDailyChart, chartRequest{
		StockCode:       ticker,
		BaseDate:        baseDate.Format("20060102"),
		AdjustedPriceTp: "1",
	}, &resp)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: %w", ticker, err)
	}
	if len(resp.Rows) == 0 {
		return model.Quote{}, fmt.Errorf("quote %s: empty chart response", ticker)
	}

	row := resp.Rows[0]
	current, err := parsePrice(row.Close)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: close: %w", ticker, err)
	}
	low, err := parsePrice(row.Low)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: low: %w", ticker, err)
	}
	high, err := parsePrice(row.High)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: high: %w", ticker, err)
	}
	open, err := parsePrice(row.Open)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: open: %w", ticker, err)
	}
	volume, err := parseCount(row.Volume)
	if err != nil {
		return model.Quote{}, fmt.Errorf("quote %s: volume: %w", ticker, err)
	}

	return model.Quote{
		Current: current,
		Low:     low,
		High:    high,
		Open:    open,
		Volume:  volume,
	}, nil
}

func (r chartRow) toPricePoint() (model.PricePoint, error) {
	date, err := time.Parse("20060102", r.Date)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("date %q: %w", r.Date, err)
	}
	close, err := parsePrice(r.Close)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("close on %s: %w", r.Date, err)
	}
	high, err := parsePrice(r.High)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("high on %s: %w", r.Date, err)
	}
	low, err := parsePrice(r.Low)
	if err != nil {
		return model.PricePoint{}, fmt.Errorf("low on %s: %w", r.Date, err)
	}
	return model.PricePoint{Date: date, Close: close, High: high, Low: low}, nil
}
