package marketdata

import (
	"context"
	"fmt"
)

const (
	apiIDListings = "ka10099"
	listingsPath  = "/api/dostk/stkinfo"
)

// Market type codes for the listings endpoint.
const (
	MarketKospi  = "0"
	MarketKosdaq = "10"
)

// Listing is one row of the exchange listing snapshot.
type Listing struct {
	Ticker       string
	Name         string
	ListedShares int64
	LastPrice    float64
}

// MarketCapEok returns the market capitalization in eok won (100M units).
func (l Listing) MarketCapEok() float64 {
	return float64(l.ListedShares) * l.LastPrice / 1e8
}

type listingsRequest struct {
	MarketType string `json:"mrkt_tp"`
}

type listingRow struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	ListCount string `json:"listCount"`
	LastPrice string `json:"lastPrice"`
}

type listingsResponse struct {
	List []listingRow `json:"list"`
}

// Listings fetches the full listing snapshot for one market. Rows with
// unparsable share counts or prices are skipped rather than failing the
// whole snapshot.
func (c *Client) Listings(ctx context.Context, marketType string) ([]Listing, error) {
	var resp listingsResponse
	err := c.post(ctx, listingsPath, apiIDListings, listingsRequest{MarketType: marketType}, &resp)
	if err != nil {
		return nil, fmt.Errorf("listings market %s: %w", marketType, err)
	}

	out := make([]Listing, 0, len(resp.List))
	skipped := 0
	for _, row := range resp.List {
		shares, err := parseCount(row.ListCount)
		if err != nil {
			skipped++
			continue
		}
		price, err := parsePrice(row.LastPrice)
		if err != nil {
			skipped++
			continue
		}
		out = append(out, Listing{
			Ticker:       row.Code,
			Name:         row.Name,
			ListedShares: shares,
			LastPrice:    price,
		})
	}
	if skipped > 0 {
		c.logger.Warn("skipped unparsable listing rows", "market", marketType, "skipped", skipped)
	}
	return out, nil
}
