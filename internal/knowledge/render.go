package knowledge

import (
	"fmt"
	"strconv"
	"strings"

	"bosun/internal/store"
)

// EmptyKnowledge stands in for an empty result so templates never lose the section.
const EmptyKnowledge = "No relevant knowledge base items found."

const categoryProduct = "product"

// Render formats items as a markdown bullet list for prompts.
func Render(items []store.Item) string {
	if len(items) == 0 {
		return EmptyKnowledge
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- **%s**: %s", strings.TrimSpace(it.Name), strings.TrimSpace(it.Content))
		if strings.EqualFold(it.Category, categoryProduct) {
			if details := productDetails(it.Meta); details != "" {
				b.WriteString(" (" + details + ")")
			}
		}
	}
	return b.String()
}

func productDetails(m store.ItemMeta) string {
	var parts []string
	if m.Price != nil {
		parts = append(parts, "Price: "+formatAmount(*m.Price))
	}
	if m.Discount != nil && *m.Discount > 0 {
		parts = append(parts, "Discount: "+strconv.FormatFloat(*m.Discount, 'f', -1, 64)+"%")
	}
	if stock := StockState(m); stock != "" {
		parts = append(parts, stock)
	}
	return strings.Join(parts, ", ")
}

// StockState describes availability; an explicit count wins over the flag.
func StockState(m store.ItemMeta) string {
	switch {
	case m.Stock != nil && *m.Stock > 0:
		return fmt.Sprintf("%d in stock", *m.Stock)
	case m.Stock != nil:
		return "Out of stock"
	case m.InStock != nil && *m.InStock:
		return "In stock"
	case m.InStock != nil:
		return "Out of stock"
	default:
		return ""
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
