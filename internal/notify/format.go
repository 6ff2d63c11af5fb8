package notify

import (
	"fmt"
	"strings"

	"bamwatch/internal/model"
)

// SourceName labels outbound alerts with the monitored retailer.
const SourceName = "Books-A-Million"

// FormatNewItem builds the alert for a first-seen, purchasable product.
func FormatNewItem(p *model.Product) Alert {
	var b strings.Builder
	fmt.Fprintf(&b, "Found new product: %s\n", p.Title)
	if p.Price != "" {
		fmt.Fprintf(&b, "Price: $%s\n", p.Price)
	}
	fmt.Fprintf(&b, "Available at %d store(s)", countAvailable(p.Stores))

	return Alert{
		Title:       "New Product: " + p.Title,
		Description: b.String(),
		URL:         p.URL,
		Image:       p.Image,
		Source:      SourceName,
	}
}

// FormatStockChange builds one aggregated alert for all store-level change
// events observed for a product in this cycle. One message per product per
// day is the contract, however many stores flipped.
func FormatStockChange(p *model.Product, events []model.ChangeEvent) Alert {
	title := "OUT OF STOCK: " + p.Title
	if p.InStock {
		title = "NOW IN STOCK: " + p.Title
	}

	var b strings.Builder
	if p.InStock {
		b.WriteString("Product is now IN STOCK!\n")
	} else {
		b.WriteString("Product is now OUT OF STOCK\n")
	}
	if p.Price != "" {
		fmt.Fprintf(&b, "Price: $%s\n", p.Price)
	}
	fmt.Fprintf(&b, "Available at %d store(s)\n", countAvailable(p.Stores))

	for _, ev := range events {
		fmt.Fprintf(&b, "\n%s store %s: %s -> %s",
			eventLabel(ev.Type), ev.StoreID,
			availLabel(ev.PreviousAvailability, ev.PreviousQuantity),
			availLabel(ev.CurrentAvailability, ev.CurrentQuantity))
	}

	return Alert{
		Title:       title,
		Description: b.String(),
		URL:         p.URL,
		Image:       p.Image,
		Source:      SourceName,
	}
}

func countAvailable(stores []model.StoreStock) int {
	n := 0
	for _, st := range stores {
		if st.Availability.IsAvailable() {
			n++
		}
	}
	return n
}

func eventLabel(t model.EventType) string {
	switch t {
	case model.EventNewItem:
		return "New at"
	case model.EventRestocked:
		return "Restocked at"
	case model.EventOOS:
		return "Sold out at"
	default:
		return string(t)
	}
}

func availLabel(a model.Availability, qty *int) string {
	label := strings.ReplaceAll(string(a), "_", " ")
	if qty != nil {
		return fmt.Sprintf("%s (qty %d)", label, *qty)
	}
	return label
}
