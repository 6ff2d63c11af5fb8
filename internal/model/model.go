// Package model defines the domain types used across the application.
package model

import "time"

// Availability is the stock status of a product at one store.
type Availability string

// Supported availability states. Anything the upstream reports outside
// this set normalizes to AvailabilityUnknown.
const (
	AvailabilityInStock    Availability = "IN_STOCK"
	AvailabilityLimited    Availability = "LIMITED_STOCK"
	AvailabilityOutOfStock Availability = "OUT_OF_STOCK"
	AvailabilityUnknown    Availability = "UNKNOWN"
)

// IsAvailable reports whether the state counts as purchasable.
func (a Availability) IsAvailable() bool {
	return a == AvailabilityInStock || a == AvailabilityLimited
}

// StoreStock is the availability of a product at a single physical store.
type StoreStock struct {
	StoreID      string
	Availability Availability
	// Quantity is the best-effort real-time count; nil when the upstream
	// did not report one.
	Quantity *int

	// Descriptive fields carried through from the observation.
	Name     string
	Address  string
	City     string
	State    string
	Zip      string
	Phone    string
	Distance string
}

// Product is the persisted record for one monitored PID.
type Product struct {
	PID        string
	Title      string
	Price      string
	URL        string
	Image      string
	LocalImage string

	InStock bool
	// Stores is the latest availability snapshot, replaced wholesale on
	// every successful check.
	Stores []StoreStock

	FirstSeen      time.Time
	LastCheck      time.Time
	LastInStock    *time.Time
	LastOutOfStock *time.Time
}

// ObservedStore is one raw per-store availability tuple from the upstream.
type ObservedStore struct {
	StoreID      string
	Availability string
	Quantity     *int

	Name     string
	Address  string
	City     string
	State    string
	Zip      string
	Phone    string
	Distance string
}

// Observation is one freshly fetched snapshot of a product.
type Observation struct {
	PID    string
	Title  string
	Price  string
	URL    string
	Image  string
	Stores []ObservedStore
}

// EventType classifies a notifiable change.
type EventType string

// Supported event types.
const (
	EventNewItem   EventType = "NEW_ITEM"
	EventRestocked EventType = "RESTOCKED"
	EventOOS       EventType = "OOS"
)

// ChangeEvent is a classified difference between a new observation and the
// prior persisted state. Events are ephemeral; only the notification ledger
// entry they may produce is persisted.
type ChangeEvent struct {
	PID                  string
	StoreID              string
	Type                 EventType
	PreviousAvailability Availability
	CurrentAvailability  Availability
	PreviousQuantity     *int
	CurrentQuantity      *int
	OccurredAt           time.Time
}

// CheckStatus classifies the outcome of one upstream stock check.
type CheckStatus int

// Check outcomes. A fetch that fails after retries is a regular outcome
// that mutates nothing, not an error the worker loop needs to catch.
const (
	CheckObservation CheckStatus = iota
	CheckNoData
	CheckFetchFailed
)

// CheckOutcome is the result of checking one PID this cycle.
type CheckOutcome struct {
	Status      CheckStatus
	Observation *Observation
	// Err carries detail for CheckFetchFailed; informational only.
	Err error
}

// NotificationClass selects which suppression rule the gate applies.
type NotificationClass string

// Supported notification classes.
const (
	ClassNewItem     NotificationClass = "new_item"
	ClassStockChange NotificationClass = "stock_change"
)

// LedgerEntry is one persisted (pid, day) notification record.
type LedgerEntry struct {
	PID        string
	Day        string // YYYY-MM-DD
	NotifiedAt time.Time
}
