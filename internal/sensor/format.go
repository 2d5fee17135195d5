package sensor

import (
	"math"
	"math/big"
	"strings"
)

// Thresholds holds hot and critical boundaries in degrees Celsius.
type Thresholds struct {
	Hot      float64
	Critical float64
}

// DefaultThresholds apply when the hardware reports no threshold points.
var DefaultThresholds = Thresholds{Hot: 90, Critical: 100}

// FormatTemp converts millidegrees to degrees rounded to one decimal place.
// Rounding looks at the exact binary value of millidegrees/1000, so 45650
// (stored as 45.6499...) gives 45.6 while an exact half such as 42250 rounds
// away from zero to 42.3.
func FormatTemp(millidegrees int64) float64 {
	v := float64(millidegrees) / 1000

	// 100*|v| needs at most 60 bits, so the product is exact.
	scaled := new(big.Float).SetPrec(128).Mul(big.NewFloat(math.Abs(v)), big.NewFloat(100))
	hundredths, _ := scaled.Int64()
	out := float64((hundredths+5)/10) / 10
	if v < 0 {
		return -out
	}
	return out
}

// ResolveName builds the display name of a source. The entry title (or item
// when untitled) is the base; a source label takes precedence over the source
// item, whose "_input" suffix is dropped.
func ResolveName(entry Entry, src Source) string {
	base := entry.Title
	if base == "" {
		base = entry.Item
	}

	switch {
	case src.Label != "":
		return base + " / " + src.Label
	case src.Item != "":
		return base + " / " + strings.TrimSuffix(src.Item, "_input")
	default:
		return base
	}
}

// ResolveThresholds maps hardware threshold points onto hot/critical.
// "critical" and "emergency" set the critical boundary, "hot" and "max" the
// hot one. Later points override earlier ones of the same class.
func ResolveThresholds(points []ThresholdPoint, defaults Thresholds) Thresholds {
	out := defaults
	for _, tp := range points {
		switch tp.Type {
		case "critical", "emergency":
			out.Critical = FormatTemp(tp.Temp)
		case "hot", "max":
			out.Hot = FormatTemp(tp.Temp)
		}
	}
	return out
}
