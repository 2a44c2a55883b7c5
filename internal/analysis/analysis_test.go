package analysis

import (
	"math"
	"strings"
	"testing"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
)

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestNumberTriesAlternativeKeys(t *testing.T) {
	row := map[string]any{"ta_grade": "61.5", "TM_TRADER_GRADE": nil}
	got, ok := Number(row, "TM_TRADER_GRADE", "TA_GRADE")
	if !ok || got != 61.5 {
		t.Fatalf("expected 61.5 from fallback key, got %v %v", got, ok)
	}
	if _, ok := Number(map[string]any{"X": "n/a"}, "X"); ok {
		t.Fatal("did not expect non-numeric string to parse")
	}
}

func TestCompute(t *testing.T) {
	stats := Compute([]float64{4, 1, 3, 2})
	if stats.Count != 4 || stats.Min != 1 || stats.Max != 4 {
		t.Fatalf("unexpected bounds: %+v", stats)
	}
	if !approx(stats.Mean, 2.5) || !approx(stats.Median, 2.5) || stats.Latest != 2 {
		t.Fatalf("unexpected center: %+v", stats)
	}
	if !approx(stats.StdDev, math.Sqrt(1.25)) {
		t.Fatalf("unexpected stddev %v", stats.StdDev)
	}
	if Compute(nil) != nil {
		t.Fatal("expected nil stats for no values")
	}
}

func TestPercentileRankAndQuartile(t *testing.T) {
	values := []float64{10, 20, 30, 40}
	cases := map[float64]string{
		40: "top quartile",
		30: "upper-middle quartile",
		20: "lower-middle quartile",
		10: "bottom quartile",
	}
	for v, want := range cases {
		if got := Quartile(PercentileRank(values, v)); got != want {
			t.Fatalf("value %v: got %q want %q", v, got, want)
		}
	}
}

func TestTrend(t *testing.T) {
	cases := []struct {
		first, last float64
		want        string
	}{
		{100, 106, "Bullish"},
		{100, 105, "Neutral"},
		{100, 94, "Bearish"},
		{0, 50, "Neutral"},
		{-100, -90, "Bullish"},
	}
	for _, tc := range cases {
		if got := Trend(tc.first, tc.last); got != tc.want {
			t.Fatalf("Trend(%v, %v) = %q, want %q", tc.first, tc.last, got, tc.want)
		}
	}
}

func TestVolatility(t *testing.T) {
	if _, label := Volatility([]float64{100, 101, 100, 101}); label != "Low" {
		t.Fatalf("expected Low, got %s", label)
	}
	if _, label := Volatility([]float64{100, 103, 100, 103}); label != "Medium" {
		t.Fatalf("expected Medium, got %s", label)
	}
	if _, label := Volatility([]float64{100, 120, 90, 130}); label != "High" {
		t.Fatalf("expected High, got %s", label)
	}
	if _, label := Volatility([]float64{5}); label != "Unknown" {
		t.Fatalf("expected Unknown for a single value, got %s", label)
	}
}

func TestSignalBreakdown(t *testing.T) {
	counts, dominant := SignalBreakdown([]float64{1, 1, -1, 0, 1})
	if counts["bullish"] != 3 || counts["bearish"] != 1 || counts["neutral"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
	if dominant != "Bullish" {
		t.Fatalf("expected Bullish, got %s", dominant)
	}
	if _, dominant := SignalBreakdown([]float64{1, -1}); dominant != "Mixed" {
		t.Fatalf("expected Mixed on a tie, got %s", dominant)
	}
}

func TestAnalyzeSeriesOrdersByDate(t *testing.T) {
	rows := []map[string]any{
		{"DATE": "2025-01-03", "CLOSE": 110.0},
		{"DATE": "2025-01-01", "CLOSE": 100.0},
		{"DATE": "2025-01-02", "CLOSE": 104.0},
	}
	rep := Analyze(registry.AnalysisSeries, "daily-ohlcv", []string{"CLOSE"}, rows)
	if rep.Field != "CLOSE" || rep.Stats == nil || rep.Stats.Latest != 110 {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.Labels["trend"] != "Bullish" {
		t.Fatalf("expected Bullish trend, got %v", rep.Labels)
	}
	if !strings.Contains(rep.Summary, "+10.00%") {
		t.Fatalf("summary missing change: %s", rep.Summary)
	}
	if m := rep.Model(); m == nil || m.Kind != "series" {
		t.Fatalf("unexpected model %+v", m)
	}
}

func TestAnalyzeSeriesOrdersByEpochTimestamp(t *testing.T) {
	rows := []map[string]any{
		{"TIMESTAMP": 1700003600.0, "CLOSE": 120.0},
		{"TIMESTAMP": 1700000000.0, "CLOSE": 100.0},
		{"TIMESTAMP": 1700007200.0, "CLOSE": 130.0},
	}
	ordered := Chronological(rows)
	if ordered[0]["TIMESTAMP"] != 1700000000.0 || ordered[2]["TIMESTAMP"] != 1700007200.0 {
		t.Fatalf("expected oldest first, got %v", ordered)
	}
	rep := Analyze(registry.AnalysisSeries, "hourly-ohlcv", []string{"CLOSE"}, rows)
	if rep.Stats == nil || rep.Stats.Latest != 130 || rep.Labels["trend"] != "Bullish" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestAnalyzeDistribution(t *testing.T) {
	rows := []map[string]any{
		{"DATE": "2025-01-01", "TM_TRADER_GRADE": 40.0},
		{"DATE": "2025-01-02", "TM_TRADER_GRADE": 55.0},
		{"DATE": "2025-01-03", "TM_TRADER_GRADE": 80.0},
	}
	rep := Analyze(registry.AnalysisDistribution, "trader-grades", []string{"TM_TRADER_GRADE"}, rows)
	if rep.Labels["quartile"] != "top quartile" || rep.Labels["percentile"] != "100" {
		t.Fatalf("unexpected labels %v", rep.Labels)
	}
	if !strings.Contains(rep.Summary, "latest 80.00") || !strings.Contains(rep.Summary, "100th percentile") {
		t.Fatalf("unexpected summary %s", rep.Summary)
	}
}

func TestAnalyzeSignals(t *testing.T) {
	rows := []map[string]any{{"TRADING_SIGNAL": 1.0}, {"TRADING_SIGNAL": -1.0}, {"TRADING_SIGNAL": -1.0}}
	rep := Analyze(registry.AnalysisSignals, "trading-signals", []string{"TRADING_SIGNAL"}, rows)
	if rep.Labels["dominant"] != "Bearish" || rep.Labels["latest"] != "Bearish" {
		t.Fatalf("unexpected labels %v", rep.Labels)
	}
	if rep.Counts["bearish"] != 2 {
		t.Fatalf("unexpected counts %v", rep.Counts)
	}
}

func TestAnalyzeWithoutData(t *testing.T) {
	rep := Analyze(registry.AnalysisSeries, "price", []string{"CURRENT_PRICE"}, nil)
	if rep.Summary != "price returned no data." {
		t.Fatalf("unexpected summary %q", rep.Summary)
	}
	rep = Analyze(registry.AnalysisNone, "ai-reports", nil, []map[string]any{{"REPORT": "x"}})
	if rep.Model() != nil || rep.Summary != "ai-reports returned 1 row." {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(1234.5); got != "1,234.50" {
		t.Fatalf("unexpected format %q", got)
	}
	if got := FormatNumber(0.00012345); got != "0.0001234" && got != "0.0001235" {
		t.Fatalf("unexpected small format %q", got)
	}
}

func TestOrdinal(t *testing.T) {
	for n, want := range map[int]string{1: "1st", 2: "2nd", 3: "3rd", 11: "11th", 12: "12th", 22: "22nd", 100: "100th"} {
		if got := ordinal(n); got != want {
			t.Fatalf("ordinal(%d) = %q, want %q", n, got, want)
		}
	}
}
