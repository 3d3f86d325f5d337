package universe

import (
	"testing"

	"github.com/hskang/krx-signals/internal/config"
	"github.com/hskang/krx-signals/internal/marketdata"
	"github.com/hskang/krx-signals/internal/model"
)

func TestNormalizeTicker(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"005930", "005930"},
		{"005930_AL", "005930"},
		{"5930", "005930"},
		{" 000660 ", "000660"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTicker(tt.in); got != tt.want {
			t.Errorf("NormalizeTicker(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"Samsung Electronics", false},
		{"KODEX 200", true},
		{"TIGER 미국나스닥100", true},
		{"KB금융", false}, // KBSTAR must not catch the bank holding company
		{"삼성 인버스 2X", true},
		{"SOL 미국S&P500", true},
	}
	for _, tt := range tests {
		if got := Excluded(tt.name); got != tt.want {
			t.Errorf("Excluded(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestScreen(t *testing.T) {
	listings := []marketdata.Listing{
		{Ticker: "005930", Name: "Samsung Electronics", ListedShares: 5_969_782_550, LastPrice: 71200},
		{Ticker: "000660", Name: "SK hynix", ListedShares: 728_002_365, LastPrice: 190000},
		{Ticker: "069500", Name: "KODEX 200", ListedShares: 200_000_000, LastPrice: 35000},
		{Ticker: "123456", Name: "Small Cap Co", ListedShares: 10_000_000, LastPrice: 5000},
		// Duplicate code across markets: keep the larger-cap row.
		{Ticker: "005930_AL", Name: "Samsung Electronics", ListedShares: 100, LastPrice: 71200},
	}

	got := Screen(listings, config.UniverseConfig{MinMarketCapEok: 13000})

	if len(got) != 2 {
		t.Fatalf("Screen() returned %d instruments, want 2: %+v", len(got), got)
	}
	// Sorted by market cap, largest first.
	if got[0].Ticker != "005930" || got[1].Ticker != "000660" {
		t.Errorf("order = %s, %s; want 005930, 000660", got[0].Ticker, got[1].Ticker)
	}
	if got[0].MarketCapEok < 4.2e6 {
		t.Errorf("MarketCapEok = %v, want the full-share row kept", got[0].MarketCapEok)
	}
}

func TestScreen_MaxInstruments(t *testing.T) {
	listings := []marketdata.Listing{
		{Ticker: "000001", Name: "Alpha", ListedShares: 1_000_000_000, LastPrice: 50000},
		{Ticker: "000002", Name: "Beta", ListedShares: 1_000_000_000, LastPrice: 40000},
		{Ticker: "000003", Name: "Gamma", ListedShares: 1_000_000_000, LastPrice: 30000},
	}

	got := Screen(listings, config.UniverseConfig{MinMarketCapEok: 1, MaxInstruments: 2})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Ticker != "000001" || got[1].Ticker != "000002" {
		t.Errorf("kept %s, %s; want the two largest", got[0].Ticker, got[1].Ticker)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Replace([]model.Instrument{
		{Ticker: "005930", Name: "Samsung Electronics"},
		{Ticker: "000660", Name: "SK hynix"},
	})

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if ins, ok := r.Get("005930"); !ok || ins.Name != "Samsung Electronics" {
		t.Errorf("Get(005930) = %+v, %v", ins, ok)
	}
	all := r.All()
	if len(all) != 2 || all[0].Ticker != "005930" {
		t.Errorf("All() = %+v, want registration order", all)
	}

	// Replace swaps the set entirely.
	r.Replace([]model.Instrument{{Ticker: "035420", Name: "NAVER"}})
	if r.Len() != 1 {
		t.Errorf("Len() after Replace = %d, want 1", r.Len())
	}
	if _, ok := r.Get("005930"); ok {
		t.Error("Get(005930) after Replace = true, want gone")
	}
}
