package journal

import (
	"fmt"
	"strings"
	"time"
)

// FormatTradeOrg renders one trade as an Org heading with a property
// drawer and review sections.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s (%s)\n", t.Underlying, t.Structure, shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":PROPOSAL_ID: %s\n", t.ProposalID)
	fmt.Fprintf(&b, ":UNDERLYING: %s\n", t.Underlying)
	fmt.Fprintf(&b, ":STRUCTURE: %s\n", t.Structure)
	fmt.Fprintf(&b, ":REGIME: %s\n", t.Regime)
	fmt.Fprintf(&b, ":LOTS: %d\n", t.Lots)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %.2f\n", t.EntryPrice)
	fmt.Fprintf(&b, ":EXIT_PRICE: %.2f\n", t.ExitPrice)
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.OpenTime.Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.CloseTime.Format(time.RFC3339))
	fmt.Fprintf(&b, ":COMMISSION: %.2f\n", t.Commission)
	fmt.Fprintf(&b, ":REALIZED_PL: %.2f\n", t.RealizedPL)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n")
	b.WriteString("\n*** Thesis\n")
	fmt.Fprintf(&b, "Regime %s at entry.\n", t.Regime)
	b.WriteString("\n*** Execution\n")
	fmt.Fprintf(&b, "Opened %d lots at %.2f, closed at %.2f (%s).\n", t.Lots, t.EntryPrice, t.ExitPrice, t.Reason)
	b.WriteString("\n*** Review\n")
	return b.String()
}

// FormatTradesOrg joins trades with a blank line between entries.
func FormatTradesOrg(trades []TradeRecord) string {
	parts := make([]string, len(trades))
	for i, t := range trades {
		parts[i] = FormatTradeOrg(t)
	}
	return strings.Join(parts, "\n\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
