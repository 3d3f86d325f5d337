package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// newBrokerServer serves a token for au10001 and dispatches other api-ids to
// the supplied handler.
func newBrokerServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-id") == apiIDToken {
			json.NewEncoder(w).Encode(map[string]string{
				"token":      "test-token",
				"expires_dt": "20991231235959",
			})
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
		}
		handler(w, r)
	}))
}

func TestDailyHistory(t *testing.T) {
	srv := newBrokerServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-id"); got != apiIDDailyChart {
			t.Errorf("api-id = %q, want %q", got, apiIDDailyChart)
		}
		var req chartRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.StockCode != "005930" {
			t.Errorf("stk_cd = %q, want %q", req.StockCode, "005930")
		}
		// Newest first, prices signed against the previous close.
		json.NewEncoder(w).Encode(map[string]any{
			"stk_dt_pole_chart_qry": []map[string]string{
				{"dt": "20260312", "cur_prc": "-71,200", "high_pric": "72,000", "low_pric": "-70,900", "open_pric": "71,800", "trde_qty": "12345678"},
				{"dt": "20260311", "cur_prc": "+71,900", "high_pric": "72,100", "low_pric": "71,300", "open_pric": "71,400", "trde_qty": "9876543"},
				{"dt": "20260310", "cur_prc": "71,400", "high_pric": "71,600", "low_pric": "70,800", "open_pric": "71,000", "trde_qty": "8765432"},
			},
		})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	points, err := c.DailyHistory(context.Background(), "005930", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 30)
	if err != nil {
		t.Fatalf("DailyHistory() error = %v", err)
	}

	if len(points) != 3 {
		t.Fatalf("len(points) = %d, want 3", len(points))
	}
	// Oldest first after normalization.
	if got := points[0].Date.Format("20060102"); got != "20260310" {
		t.Errorf("points[0].Date = %s, want 20260310", got)
	}
	if points[2].Close != 71200 {
		t.Errorf("points[2].Close = %v, want 71200 (sign stripped)", points[2].Close)
	}
	if points[2].Low != 70900 {
		t.Errorf("points[2].Low = %v, want 70900", points[2].Low)
	}
	if points[1].Close != 71900 {
		t.Errorf("points[1].Close = %v, want 71900", points[1].Close)
	}
}

func TestDailyHistory_TruncatesToRequestedDays(t *testing.T) {
	srv := newBrokerServer(t, func(w http.ResponseWriter, r *http.Request) {
		rows := make([]map[string]string, 0, 40)
		day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 40; i++ {
			rows = append(rows, map[string]string{
				"dt": day.AddDate(0, 0, -i).Format("20060102"), "cur_prc": "50000",
				"high_pric": "50500", "low_pric": "49500", "open_pric": "50000", "trde_qty": "1",
			})
		}
		json.NewEncoder(w).Encode(map[string]any{"stk_dt_pole_chart_qry": rows})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	points, err := c.DailyHistory(context.Background(), "005930", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), 25)
	if err != nil {
		t.Fatalf("DailyHistory() error = %v", err)
	}
	if len(points) != 25 {
		t.Errorf("len(points) = %d, want 25", len(points))
	}
	// Keeps the newest rows.
	if got := points[len(points)-1].Date.Format("20060102"); got != "20260312" {
		t.Errorf("last date = %s, want 20260312", got)
	}
}

func TestQuote(t *testing.T) {
	srv := newBrokerServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"stk_dt_pole_chart_qry": []map[string]string{
				{"dt": "20260312", "cur_prc": "-45,200", "high_pric": "45,900", "low_pric": "-44,500", "open_pric": "45,800", "trde_qty": "5,432,100"},
			},
		})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	q, err := c.Quote(context.Background(), "005930", time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	if q.Current != 45200 || q.Low != 44500 || q.High != 45900 {
		t.Errorf("Quote = %+v, want current 45200 low 44500 high 45900", q)
	}
	if q.Volume != 5432100 {
		t.Errorf("Volume = %d, want 5432100", q.Volume)
	}
}

func TestListings(t *testing.T) {
	srv := newBrokerServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("api-id"); got != apiIDListings {
			t.Errorf("api-id = %q, want %q", got, apiIDListings)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"list": []map[string]string{
				{"code": "005930", "name": "Samsung Electronics", "listCount": "5969782550", "lastPrice": "71200"},
				{"code": "000660", "name": "SK hynix", "listCount": "728002365", "lastPrice": "190000"},
				{"code": "BAD", "name": "broken row", "listCount": "n/a", "lastPrice": "100"},
			},
		})
	})
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	listings, err := c.Listings(context.Background(), MarketKospi)
	if err != nil {
		t.Fatalf("Listings() error = %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("len(listings) = %d, want 2 (broken row skipped)", len(listings))
	}
	if listings[0].Ticker != "005930" || listings[0].ListedShares != 5969782550 {
		t.Errorf("listings[0] = %+v", listings[0])
	}
	// 5,969,782,550 shares * 71,200 won ~= 4,250,485 eok.
	if cap := listings[0].MarketCapEok(); cap < 4.2e6 || cap > 4.3e6 {
		t.Errorf("MarketCapEok() = %v, want ~4.25e6", cap)
	}
}

func TestTokenReused(t *testing.T) {
	var tokenCalls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-id") == apiIDToken {
			tokenCalls.Add(1)
			json.NewEncoder(w).Encode(map[string]string{"token": "tok", "expires_dt": "20991231235959"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"stk_dt_pole_chart_qry": []map[string]string{
			{"dt": "20260312", "cur_prc": "100", "high_pric": "100", "low_pric": "100", "open_pric": "100", "trde_qty": "1"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	for i := 0; i < 3; i++ {
		if _, err := c.Quote(context.Background(), "005930", time.Now()); err != nil {
			t.Fatalf("Quote() error = %v", err)
		}
	}
	if got := tokenCalls.Load(); got != 1 {
		t.Errorf("token requests = %d, want 1", got)
	}
}

func TestRetryOnServerError(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-id") == apiIDToken {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok", "expires_dt": "20991231235959"})
			return
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"stk_dt_pole_chart_qry": []map[string]string{
			{"dt": "20260312", "cur_prc": "100", "high_pric": "100", "low_pric": "100", "open_pric": "100", "trde_qty": "1"},
		}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", WithRetries(2, 10*time.Millisecond))
	if _, err := c.Quote(context.Background(), "005930", time.Now()); err != nil {
		t.Fatalf("Quote() error = %v, want retry to succeed", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("chart calls = %d, want 2", got)
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-id") == apiIDToken {
			json.NewEncoder(w).Encode(map[string]string{"token": "tok", "expires_dt": "20991231235959"})
			return
		}
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret", WithRetries(3, 10*time.Millisecond))
	_, err := c.Quote(context.Background(), "005930", time.Now())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", apiErr.StatusCode)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("chart calls = %d, want 1 (no retry on 400)", got)
	}
}
