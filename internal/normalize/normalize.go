package normalize

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// All functions here are total: malformed input yields an explicit
// zero/false result, never a panic. Callers decide whether a missing field
// is fatal for the record.

var (
	fullwidthFolder = strings.NewReplacer(
		"０", "0", "１", "1", "２", "2", "３", "3", "４", "4",
		"５", "5", "６", "6", "７", "7", "８", "8", "９", "9",
		"，", ",", "．", ".",
	)

	// Numbers adjacent to an explicit currency marker, prefix or suffix.
	reCurrencyPrefix = regexp.MustCompile(`(?i)(?:[¥￥]|JPY)\s*([0-9][0-9,]*(?:\.[0-9]+)?)`)
	reCurrencySuffix = regexp.MustCompile(`(?i)([0-9][0-9,]*(?:\.[0-9]+)?)\s*(?:円|yen|JPY)`)
	reAnyNumber      = regexp.MustCompile(`[0-9][0-9,]*(?:\.[0-9]+)?`)

	reDateJP    = regexp.MustCompile(`(\d{4})\s*年\s*(\d{1,2})\s*月(?:\s*(\d{1,2})\s*日)?`)
	reDateSlash = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	// Digits plus date punctuation only: a date attempt, not free text.
	reDateish = regexp.MustCompile(`^[0-9年月日/\s]+$`)

	reSizeWeight = regexp.MustCompile(`(?i)([0-9]+(?:\.[0-9]+)?)\s*x\s*([0-9]+(?:\.[0-9]+)?)\s*x\s*([0-9]+(?:\.[0-9]+)?)\s*cm\s*/\s*([0-9]+(?:\.[0-9]+)?)\s*(kg|g)`)

	reWhitespace = regexp.MustCompile(`\s+`)
	reJapanese   = regexp.MustCompile(`[\x{3040}-\x{30ff}\x{3400}-\x{4dbf}\x{4e00}-\x{9fff}]`)
)

// FoldFullwidth converts full-width digits and separators to their ASCII
// forms so the numeric parsers see one alphabet.
func FoldFullwidth(raw string) string {
	return fullwidthFolder.Replace(raw)
}

// ParsePrice extracts a price from localized text such as "¥3,960",
// "５，５００円（税10%込）" or "1,200 JPY". Tokens adjacent to a currency
// marker win over bare numbers so tax-rate percentages are not captured;
// among candidates the largest value is taken.
func ParsePrice(raw string) (float64, bool) {
	text := FoldFullwidth(raw)

	candidates := collectAmounts(reCurrencyPrefix.FindAllStringSubmatch(text, -1))
	candidates = append(candidates, collectAmounts(reCurrencySuffix.FindAllStringSubmatch(text, -1))...)
	if len(candidates) == 0 {
		candidates = collectAmounts(wrapMatches(reAnyNumber.FindAllString(text, -1)))
	}
	if len(candidates) == 0 {
		return 0, false
	}

	best := candidates[0]
	for _, v := range candidates[1:] {
		if v > best {
			best = v
		}
	}
	return best, true
}

func collectAmounts(matches [][]string) []float64 {
	var out []float64
	for _, m := range matches {
		raw := m[len(m)-1]
		v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

func wrapMatches(matches []string) [][]string {
	out := make([][]string, len(matches))
	for i, m := range matches {
		out[i] = []string{m}
	}
	return out
}

// PreTaxAmount backs a fixed tax multiplier out of a gross amount and
// rounds half-up to the nearest whole unit. Returns false for a
// non-positive multiplier.
func PreTaxAmount(gross float64, taxMultiplier float64) (int, bool) {
	if taxMultiplier <= 0 {
		return 0, false
	}
	return int(math.Floor(gross/taxMultiplier + 0.5)), true
}

// ParseLocalizedDate canonicalizes "YYYY年MM月[DD日]" (day defaults to the
// 1st) and "YYYY/MM/DD" to an ISO-8601 midnight-UTC string. Input that
// looks like a date but fails month/day validation yields "". Anything
// else non-empty passes through unmodified rather than being discarded.
func ParseLocalizedDate(raw string) string {
	text := strings.TrimSpace(FoldFullwidth(raw))
	if text == "" {
		return ""
	}

	if m := reDateJP.FindStringSubmatch(text); m != nil {
		day := m[3]
		if day == "" {
			day = "1"
		}
		return formatDate(m[1], m[2], day)
	}
	if m := reDateSlash.FindStringSubmatch(text); m != nil {
		return formatDate(m[1], m[2], m[3])
	}
	if reDateish.MatchString(text) {
		return ""
	}
	return text
}

func formatDate(year, month, day string) string {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02dT00:00:00Z", y, m, d)
}

// SizeWeight is a parsed "L x W x H cm / WEIGHT" compound value with the
// weight normalized to grams.
type SizeWeight struct {
	Length      float64
	Width       float64
	Height      float64
	WeightGrams float64
}

// ParseSizeWeight parses a compound "L x W x H cm / WEIGHT (kg|g)" string.
func ParseSizeWeight(raw string) (SizeWeight, bool) {
	m := reSizeWeight.FindStringSubmatch(FoldFullwidth(raw))
	if m == nil {
		return SizeWeight{}, false
	}

	l, err1 := strconv.ParseFloat(m[1], 64)
	w, err2 := strconv.ParseFloat(m[2], 64)
	h, err3 := strconv.ParseFloat(m[3], 64)
	weight, err4 := strconv.ParseFloat(m[4], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return SizeWeight{}, false
	}
	if strings.EqualFold(m[5], "kg") {
		weight *= 1000
	}
	return SizeWeight{Length: l, Width: w, Height: h, WeightGrams: weight}, true
}

// CollapseWhitespace folds whitespace runs to single spaces and trims the
// edges. Applied to all scraped text before storage.
func CollapseWhitespace(raw string) string {
	return strings.TrimSpace(reWhitespace.ReplaceAllString(raw, " "))
}

// ContainsJapanese reports whether the text contains kana or kanji.
func ContainsJapanese(raw string) bool {
	return reJapanese.MatchString(raw)
}
