package cli

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"options-analytics/internal/models"
)

// FormatMoney formats an amount as dollars with thousands separators.
func FormatMoney(amount float64) string {
	negative := amount < 0
	str := decimal.NewFromFloat(math.Abs(amount)).StringFixed(2)
	parts := strings.SplitN(str, ".", 2)

	result := "$" + groupThousands(parts[0]) + "." + parts[1]
	if negative && str != "0.00" {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}
	var b strings.Builder
	lead := n % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPnL formats P&L with an explicit sign.
func FormatPnL(pnl float64) string {
	if pnl > 0 {
		return "+" + FormatMoney(pnl)
	}
	return FormatMoney(pnl)
}

// FormatPrice formats a price.
func FormatPrice(price float64) string {
	return fmt.Sprintf("%.2f", price)
}

// FormatStrike formats a strike without trailing zeros.
func FormatStrike(strike float64) string {
	return decimal.NewFromFloat(strike).Round(4).String()
}

// FormatIV formats a volatility as a percentage.
func FormatIV(iv float64) string {
	return fmt.Sprintf("%.2f%%", iv*100)
}

// FormatVolume formats volume in compact form.
func FormatVolume(volume int64) string {
	switch {
	case volume >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(volume)/1_000_000)
	case volume >= 1_000:
		return fmt.Sprintf("%.1fK", float64(volume)/1_000)
	}
	return fmt.Sprintf("%d", volume)
}

// FormatDate formats a date.
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// FormatGreeks formats option Greeks.
func FormatGreeks(g models.Greeks) string {
	return fmt.Sprintf("Δ: %.4f  Γ: %.4f  Θ: %.4f  ν: %.4f  ρ: %.4f", g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho)
}

// FormatRiskReward formats a risk/reward ratio, or "-" when undefined.
func FormatRiskReward(rr *float64) string {
	if rr == nil {
		return "-"
	}
	return fmt.Sprintf("1:%.2f", *rr)
}

// FormatBreakevens joins breakeven prices.
func FormatBreakevens(points []float64) string {
	if len(points) == 0 {
		return "none"
	}
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = FormatPrice(p)
	}
	return strings.Join(parts, ", ")
}

// FormatLeg describes a leg in the same syntax ParseLeg accepts.
func FormatLeg(l models.Leg) string {
	if l.Instrument.IsUnderlying() {
		return fmt.Sprintf("%s:stock:%s:%d", l.Side, FormatPrice(l.Premium), l.Quantity)
	}
	s := fmt.Sprintf("%s:%s:%s:%s:%d", l.Side, l.Type, FormatStrike(l.Strike), FormatPrice(l.Premium), l.Quantity)
	if !l.Expiration.IsZero() {
		s += ":" + FormatDate(l.Expiration)
	}
	return s
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(" ", length-len(s)) + s
}
