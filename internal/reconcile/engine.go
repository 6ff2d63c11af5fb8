// Package reconcile implements the stock-change detection engine. It diffs
// fresh observations against the persisted product state and classifies
// notifiable change events.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"bamwatch/internal/model"
)

// ErrMissingPID is returned for an observation without a product identifier.
var ErrMissingPID = errors.New("observation has no pid")

// ImageFetcher mirrors a remote product image locally. The engine treats it
// as an optional collaborator; a nil fetcher disables image mirroring.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Engine reconciles observations against the in-memory product mapping for
// one check cycle. It owns the mapping for the duration of the cycle; the
// caller loads it from storage beforehand and persists it at the checkpoint.
type Engine struct {
	products map[string]*model.Product
	images   ImageFetcher
	onEvent  func(model.ChangeEvent)
	now      func() time.Time
	log      *slog.Logger
}

// New creates an Engine over the given product mapping.
func New(products map[string]*model.Product, log *slog.Logger) *Engine {
	if products == nil {
		products = make(map[string]*model.Product)
	}
	return &Engine{
		products: products,
		now:      time.Now,
		log:      log,
	}
}

// SetImageFetcher attaches the optional image mirroring collaborator.
func (e *Engine) SetImageFetcher(f ImageFetcher) {
	e.images = f
}

// SetEventHook registers a callback invoked synchronously after each change
// event is classified.
func (e *Engine) SetEventHook(fn func(model.ChangeEvent)) {
	e.onEvent = fn
}

// SetNowFunc overrides the clock (useful for testing).
func (e *Engine) SetNowFunc(fn func() time.Time) {
	e.now = fn
}

// Products returns the product mapping the engine operates on.
func (e *Engine) Products() map[string]*model.Product {
	return e.products
}

// Reconcile diffs one observation against the last-known state for its PID,
// updates the product record in place and returns the classified change
// events in post-dedup store order.
//
// A brand-new product that is nowhere available produces no events but is
// still recorded silently.
func (e *Engine) Reconcile(ctx context.Context, obs *model.Observation) ([]model.ChangeEvent, error) {
	if obs == nil || obs.PID == "" {
		return nil, ErrMissingPID
	}

	now := e.now().UTC()
	existing, ok := e.products[obs.PID]
	isNew := !ok

	prev := make(map[string]model.StoreStock)
	if !isNew {
		for _, st := range existing.Stores {
			prev[st.StoreID] = st
		}
	}

	observed := e.dedupeStores(obs.PID, obs.Stores)

	var events []model.ChangeEvent
	newStores := make([]model.StoreStock, 0, len(observed))
	for _, raw := range observed {
		cur := model.StoreStock{
			StoreID:      raw.StoreID,
			Availability: NormalizeAvailability(raw.Availability),
			Quantity:     raw.Quantity,
			Name:         raw.Name,
			Address:      raw.Address,
			City:         raw.City,
			State:        raw.State,
			Zip:          raw.Zip,
			Phone:        raw.Phone,
			Distance:     raw.Distance,
		}
		newStores = append(newStores, cur)

		prevAvail := model.AvailabilityOutOfStock
		var prevQty *int
		if p, found := prev[raw.StoreID]; found {
			prevAvail = p.Availability
			prevQty = p.Quantity
		}

		if cur.Availability == prevAvail && qtyEqual(cur.Quantity, prevQty) {
			continue
		}

		var typ model.EventType
		switch {
		case isNew:
			if !cur.Availability.IsAvailable() {
				continue
			}
			typ = model.EventNewItem
		case !prevAvail.IsAvailable() && cur.Availability.IsAvailable():
			typ = model.EventRestocked
		case prevAvail.IsAvailable() && !cur.Availability.IsAvailable():
			typ = model.EventOOS
		case prevAvail.IsAvailable() && cur.Availability.IsAvailable():
			// Quantity moved while the product stayed purchasable; the
			// quantity is the finer-grained restock signal.
			if qtyEqual(cur.Quantity, prevQty) {
				continue
			}
			typ = model.EventRestocked
		default:
			// Unavailable to unavailable, not notifiable.
			continue
		}

		ev := model.ChangeEvent{
			PID:                  obs.PID,
			StoreID:              cur.StoreID,
			Type:                 typ,
			PreviousAvailability: prevAvail,
			CurrentAvailability:  cur.Availability,
			PreviousQuantity:     prevQty,
			CurrentQuantity:      cur.Quantity,
			OccurredAt:           now,
		}
		events = append(events, ev)
		if e.onEvent != nil {
			e.onEvent(ev)
		}
	}

	record := existing
	if isNew {
		record = &model.Product{PID: obs.PID, FirstSeen: now}
		e.products[obs.PID] = record
	}

	// Descriptive fields keep their last-known-good value when the new
	// observation is missing them.
	record.Title = firstNonEmpty(obs.Title, record.Title)
	record.Price = firstNonEmpty(obs.Price, record.Price)
	record.URL = firstNonEmpty(obs.URL, record.URL)
	record.Image = firstNonEmpty(obs.Image, record.Image)

	record.Stores = newStores
	record.InStock = anyAvailable(newStores)
	record.LastCheck = now
	if record.InStock {
		t := now
		record.LastInStock = &t
	} else {
		t := now
		record.LastOutOfStock = &t
	}

	e.mirrorImage(ctx, record)

	return events, nil
}

// dedupeStores collapses duplicate store entries, keeping the one with the
// higher quantity (first wins on ties), and drops entries without a store
// id. A bad entry never aborts its siblings.
func (e *Engine) dedupeStores(pid string, stores []model.ObservedStore) []model.ObservedStore {
	out := make([]model.ObservedStore, 0, len(stores))
	index := make(map[string]int)
	for _, st := range stores {
		if st.StoreID == "" {
			e.log.Warn("dropping store entry without id", "pid", pid)
			continue
		}
		i, seen := index[st.StoreID]
		if !seen {
			index[st.StoreID] = len(out)
			out = append(out, st)
			continue
		}
		if qtyGreater(st.Quantity, out[i].Quantity) {
			out[i] = st
		}
	}
	return out
}

// mirrorImage hands the product image to the optional image fetcher. Any
// failure degrades to "no local image" and never aborts reconciliation.
func (e *Engine) mirrorImage(ctx context.Context, p *model.Product) {
	if e.images == nil || p.LocalImage != "" || p.Image == "" {
		return
	}
	path, err := e.images.Fetch(ctx, p.Image)
	if err != nil {
		e.log.Debug("mirror product image", "pid", p.PID, "url", p.Image, "error", err)
		return
	}
	p.LocalImage = path
}

// NormalizeAvailability maps a raw upstream availability string onto the
// enumerated states. Unrecognized values become UNKNOWN.
func NormalizeAvailability(raw string) model.Availability {
	v := strings.ToUpper(strings.TrimSpace(raw))
	v = strings.ReplaceAll(v, " ", "_")
	switch model.Availability(v) {
	case model.AvailabilityInStock, model.AvailabilityLimited, model.AvailabilityOutOfStock:
		return model.Availability(v)
	case "":
		return model.AvailabilityUnknown
	default:
		return model.AvailabilityUnknown
	}
}

func qtyEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func qtyGreater(a, b *int) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return *a > *b
}

func anyAvailable(stores []model.StoreStock) bool {
	for _, st := range stores {
		if st.Availability.IsAvailable() {
			return true
		}
	}
	return false
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
