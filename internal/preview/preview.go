// Package preview renders a human-readable interpretation of a venue's order
// preview: what the order costs, what it pays in fees, and the prices at
// which the position breaks even or reaches fixed profit targets.
package preview

import (
	"fmt"
	"strings"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// profitTargets are the fixed quote-currency profit levels reported in the
// interpretation.
var profitTargets = []float64{1, 5, 10}

// Interpretation is the computed breakdown of one order preview.
type Interpretation struct {
	BaseCurrency   string
	QuoteCurrency  string
	TotalCost      float64
	FeeAmount      float64
	FeePercent     float64
	BaseQuantity   float64
	BreakEvenPrice float64
	TargetPrices   map[float64]float64 // profit target -> required price
	SlippagePct    float64
	CurrentPrice   float64
}

// Interpret computes the breakdown for p. The pair is split on "-"
// (Coinbase-style product IDs); pairs without a separator keep the full pair
// as the base currency label.
func Interpret(p domain.OrderPreview) Interpretation {
	base, quote := splitPair(p.Pair)

	out := Interpretation{
		BaseCurrency:  base,
		QuoteCurrency: quote,
		TotalCost:     p.OrderTotal,
		FeeAmount:     p.Commission,
		BaseQuantity:  p.BaseSize,
		SlippagePct:   p.Slippage * 100,
		CurrentPrice:  p.QuotePrice,
		TargetPrices:  make(map[float64]float64, len(profitTargets)),
	}
	if p.BaseSize != 0 {
		out.BreakEvenPrice = p.OrderTotal / p.BaseSize
		for _, target := range profitTargets {
			out.TargetPrices[target] = (p.OrderTotal + target) / p.BaseSize
		}
	}
	if p.OrderTotal != 0 {
		out.FeePercent = p.Commission / p.OrderTotal * 100
	}
	return out
}

// Render formats the interpretation as a multi-line summary suitable for
// logs or notification messages.
func Render(p domain.OrderPreview) string {
	in := Interpret(p)

	var b strings.Builder
	fmt.Fprintf(&b, "Order summary:\n")
	fmt.Fprintf(&b, "- %s %.6f %s for %.2f %s\n",
		strings.ToUpper(string(p.Side)), in.BaseQuantity, in.BaseCurrency, in.TotalCost, in.QuoteCurrency)
	fmt.Fprintf(&b, "- Fee: %.4f %s (%.2f%%)\n", in.FeeAmount, in.QuoteCurrency, in.FeePercent)
	fmt.Fprintf(&b, "- Slippage: %.2f%%\n", in.SlippagePct)
	fmt.Fprintf(&b, "Profit points (in %s):\n", in.QuoteCurrency)
	fmt.Fprintf(&b, "- Break-even price: %.2f\n", in.BreakEvenPrice)
	for _, target := range profitTargets {
		fmt.Fprintf(&b, "- $%.0f profit at: %.2f\n", target, in.TargetPrices[target])
	}
	fmt.Fprintf(&b, "Current %s price: %.2f %s\n", in.BaseCurrency, in.CurrentPrice, in.QuoteCurrency)
	return b.String()
}

func splitPair(pair string) (base, quote string) {
	if i := strings.IndexByte(pair, '-'); i > 0 {
		return pair[:i], pair[i+1:]
	}
	return pair, ""
}
