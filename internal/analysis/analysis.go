// Package analysis derives summary statistics and coarse labels from TokenMetrics rows.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ggonzalez94/tokenmetrics-cli/internal/model"
	"github.com/ggonzalez94/tokenmetrics-cli/internal/registry"
)

const (
	TrendThresholdPct   = 5.0
	LowVolatilityPct    = 2.0
	MediumVolatilityPct = 5.0
)

var dateKeys = []string{"DATE", "TIMESTAMP", "date", "timestamp"}

// Report is the analysis of one endpoint response.
type Report struct {
	Kind    registry.AnalysisKind
	Field   string
	Stats   *model.Stats
	Labels  map[string]string
	Counts  map[string]int
	Summary string
}

// Model converts r to its envelope form. Reports without analysis yield nil.
func (r Report) Model() *model.Analysis {
	if r.Kind == registry.AnalysisNone || r.Kind == "" {
		return nil
	}
	return &model.Analysis{
		Kind:   string(r.Kind),
		Field:  r.Field,
		Stats:  r.Stats,
		Labels: r.Labels,
		Counts: r.Counts,
	}
}

// Analyze runs the heuristics for kind over rows, reading the first of fields present.
func Analyze(kind registry.AnalysisKind, label string, fields []string, rows []map[string]any) Report {
	rep := Report{Kind: kind}
	if len(rows) == 0 {
		rep.Summary = fmt.Sprintf("%s returned no data.", label)
		return rep
	}
	switch kind {
	case registry.AnalysisDistribution:
		analyzeDistribution(&rep, label, fields, rows)
	case registry.AnalysisSeries:
		analyzeSeries(&rep, label, fields, rows)
	case registry.AnalysisSignals:
		analyzeSignals(&rep, label, fields, rows)
	default:
		rep.Kind = registry.AnalysisNone
		rep.Summary = fmt.Sprintf("%s returned %d %s.", label, len(rows), plural(len(rows), "row"))
	}
	return rep
}

func analyzeDistribution(rep *Report, label string, fields []string, rows []map[string]any) {
	values, field := Values(Chronological(rows), fields...)
	rep.Field = field
	if len(values) == 0 {
		rep.Summary = fmt.Sprintf("%s returned %d %s without a numeric %s value.", label, len(rows), plural(len(rows), "row"), strings.Join(fields, "/"))
		return
	}
	stats := Compute(values)
	rank := PercentileRank(values, stats.Latest)
	rep.Stats = stats
	rep.Labels = map[string]string{
		"quartile":   Quartile(rank),
		"percentile": strconv.Itoa(int(math.Round(rank))),
	}
	rep.Summary = fmt.Sprintf("%s %s across %d %s: latest %s (%s, %s percentile), mean %s, median %s, range %s to %s.",
		label, field, stats.Count, plural(stats.Count, "value"),
		FormatNumber(stats.Latest), rep.Labels["quartile"], ordinal(int(math.Round(rank))),
		FormatNumber(stats.Mean), FormatNumber(stats.Median), FormatNumber(stats.Min), FormatNumber(stats.Max))
}

func analyzeSeries(rep *Report, label string, fields []string, rows []map[string]any) {
	values, field := Values(Chronological(rows), fields...)
	rep.Field = field
	if len(values) == 0 {
		rep.Summary = fmt.Sprintf("%s returned %d %s without a numeric %s value.", label, len(rows), plural(len(rows), "row"), strings.Join(fields, "/"))
		return
	}
	stats := Compute(values)
	rep.Stats = stats
	if len(values) == 1 {
		rep.Summary = fmt.Sprintf("%s %s: %s.", label, field, FormatNumber(stats.Latest))
		return
	}
	change := ChangePct(values[0], values[len(values)-1])
	volPct, volLabel := Volatility(values)
	rep.Labels = map[string]string{
		"trend":      Trend(values[0], values[len(values)-1]),
		"volatility": volLabel,
	}
	rep.Summary = fmt.Sprintf("%s %s over %d periods: %s to %s (%+.2f%%), trend %s, volatility %s (%.2f%% per period), range %s to %s.",
		label, field, stats.Count, FormatNumber(values[0]), FormatNumber(stats.Latest), change,
		rep.Labels["trend"], volLabel, volPct, FormatNumber(stats.Min), FormatNumber(stats.Max))
}

func analyzeSignals(rep *Report, label string, fields []string, rows []map[string]any) {
	ordered := Chronological(rows)
	values, field := Values(ordered, fields...)
	rep.Field = field
	counts, dominant := SignalBreakdown(values)
	rep.Counts = counts
	rep.Labels = map[string]string{"dominant": dominant}
	if len(values) > 0 {
		rep.Labels["latest"] = SignalLabel(values[len(values)-1])
	}
	rep.Summary = fmt.Sprintf("%s across %d %s: %d bullish, %d bearish, %d neutral; dominant %s",
		label, len(values), plural(len(values), "signal"), counts["bullish"], counts["bearish"], counts["neutral"], dominant)
	if latest, ok := rep.Labels["latest"]; ok {
		rep.Summary += fmt.Sprintf(", latest %s", latest)
	}
	rep.Summary += "."
}

// Number returns the first finite numeric value stored under keys. Numeric strings count.
func Number(row map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := lookup(row, key); ok {
			if n, ok := toFloat(v); ok {
				return n, true
			}
		}
	}
	return 0, false
}

// Values extracts the numeric column from rows, using the first key that yields any value.
func Values(rows []map[string]any, keys ...string) ([]float64, string) {
	for _, key := range keys {
		out := make([]float64, 0, len(rows))
		for _, row := range rows {
			if n, ok := Number(row, key); ok {
				out = append(out, n)
			}
		}
		if len(out) > 0 {
			return out, key
		}
	}
	return nil, ""
}

// Chronological returns rows ordered oldest first when they carry a date column; otherwise
// rows are returned in their original order.
func Chronological(rows []map[string]any) []map[string]any {
	out := append([]map[string]any(nil), rows...)
	if len(out) == 0 {
		return out
	}
	key := ""
	for _, k := range dateKeys {
		if _, ok := lookup(out[0], k); ok {
			key = k
			break
		}
	}
	if key == "" {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := lookup(out[i], key)
		b, _ := lookup(out[j], key)
		return dateLess(a, b)
	})
	return out
}

// dateLess orders epoch numbers numerically and everything else (ISO dates) as text.
func dateLess(a, b any) bool {
	x, okA := toFloat(a)
	y, okB := toFloat(b)
	if okA && okB {
		return x < y
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

// Compute returns descriptive statistics; Latest is the last value.
func Compute(values []float64) *model.Stats {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	return &model.Stats{
		Count:  len(values),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		Mean:   mean,
		Median: median(sorted),
		StdDev: stdDev(values, mean),
		Latest: values[len(values)-1],
	}
}

// PercentileRank is the share of values at or below v, in percent.
func PercentileRank(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	n := 0
	for _, x := range values {
		if x <= v {
			n++
		}
	}
	return float64(n) / float64(len(values)) * 100
}

func Quartile(rank float64) string {
	switch {
	case rank > 75:
		return "top quartile"
	case rank > 50:
		return "upper-middle quartile"
	case rank > 25:
		return "lower-middle quartile"
	default:
		return "bottom quartile"
	}
}

// ChangePct is the percentage change from first to last. A zero base yields 0.
func ChangePct(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return (last - first) / math.Abs(first) * 100
}

func Trend(first, last float64) string {
	change := ChangePct(first, last)
	switch {
	case change > TrendThresholdPct:
		return "Bullish"
	case change < -TrendThresholdPct:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// Volatility is the standard deviation of period-over-period returns, in percent.
func Volatility(values []float64) (float64, string) {
	returns := make([]float64, 0, len(values))
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		returns = append(returns, (values[i]-values[i-1])/values[i-1])
	}
	if len(returns) == 0 {
		return 0, "Unknown"
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))
	pct := stdDev(returns, mean) * 100
	switch {
	case pct < LowVolatilityPct:
		return pct, "Low"
	case pct < MediumVolatilityPct:
		return pct, "Medium"
	default:
		return pct, "High"
	}
}

// SignalBreakdown counts 1 (bullish), -1 (bearish) and 0 (neutral) signals.
func SignalBreakdown(values []float64) (map[string]int, string) {
	counts := map[string]int{"bullish": 0, "bearish": 0, "neutral": 0}
	for _, v := range values {
		counts[strings.ToLower(SignalLabel(v))]++
	}
	switch {
	case len(values) == 0:
		return counts, "None"
	case counts["bullish"] > counts["bearish"] && counts["bullish"] > counts["neutral"]:
		return counts, "Bullish"
	case counts["bearish"] > counts["bullish"] && counts["bearish"] > counts["neutral"]:
		return counts, "Bearish"
	case counts["neutral"] > counts["bullish"] && counts["neutral"] > counts["bearish"]:
		return counts, "Neutral"
	default:
		return counts, "Mixed"
	}
}

func SignalLabel(v float64) string {
	switch {
	case v > 0:
		return "Bullish"
	case v < 0:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// FormatNumber renders v with thousands separators, keeping significant digits for small values.
func FormatNumber(v float64) string {
	if v != 0 && math.Abs(v) < 1 {
		return strconv.FormatFloat(v, 'g', 4, 64)
	}
	return message.NewPrinter(language.English).Sprintf("%.2f", v)
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func stdDev(values []float64, mean float64) float64 {
	if len(values) == 0 {
		return 0
	}
	acc := 0.0
	for _, v := range values {
		acc += (v - mean) * (v - mean)
	}
	return math.Sqrt(acc / float64(len(values)))
}

func lookup(row map[string]any, key string) (any, bool) {
	if v, ok := row[key]; ok && v != nil {
		return v, true
	}
	for k, v := range row {
		if v != nil && strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	var n float64
	switch t := v.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		n = parsed
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func ordinal(n int) string {
	suffix := "th"
	switch {
	case n%100 >= 11 && n%100 <= 13:
	case n%10 == 1:
		suffix = "st"
	case n%10 == 2:
		suffix = "nd"
	case n%10 == 3:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
