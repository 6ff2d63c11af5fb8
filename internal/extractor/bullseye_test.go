package extractor

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bamwatch/internal/model"
)

const bullseyeFixture = `{
  "pidinfo": {
    "title": "Pokémon TCG: <b>Scarlet &amp; Violet</b> Elite Trainer Box",
    "retail_price": "49.99",
    "td_url": "https://www.example.com/p/F820650412493",
    "image_url": "https://covers.example.com/F820650412493.jpg"
  },
  "ResultList": [
    {
      "StoreNumber": 331,
      "Name": "Douglasville",
      "Address1": "2700 Chapel Hill Rd",
      "Address2": "Suite 100",
      "City": "Douglasville",
      "State": "GA",
      "PostCode": "30135",
      "PhoneNumber": "770-555-0100",
      "Distance": 4.2,
      "Availability": "IN STOCK",
      "QtyOnHand": 3
    },
    {
      "StoreNumber": "42",
      "Name": "Birmingham",
      "City": "Birmingham",
      "State": "AL",
      "Availability": "OUT OF STOCK"
    }
  ]
}`

func intPtr(v int) *int { return &v }

func TestParseBullseye(t *testing.T) {
	got, err := ParseBullseye([]byte(bullseyeFixture), "F820650412493")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	want := &model.Observation{
		PID:   "F820650412493",
		Title: "Pokémon TCG: Scarlet & Violet Elite Trainer Box",
		Price: "49.99",
		URL:   "https://www.example.com/p/F820650412493",
		Image: "https://covers.example.com/F820650412493.jpg",
		Stores: []model.ObservedStore{
			{
				StoreID:      "331",
				Availability: "IN STOCK",
				Quantity:     intPtr(3),
				Name:         "Douglasville",
				Address:      "2700 Chapel Hill Rd Suite 100",
				City:         "Douglasville",
				State:        "GA",
				Zip:          "30135",
				Phone:        "770-555-0100",
				Distance:     "4.2",
			},
			{
				StoreID:      "42",
				Availability: "OUT OF STOCK",
				Name:         "Birmingham",
				City:         "Birmingham",
				State:        "AL",
			},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("observation mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBullseyeNoData(t *testing.T) {
	_, err := ParseBullseye([]byte(`{}`), "X")
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestParseBullseyeMalformed(t *testing.T) {
	_, err := ParseBullseye([]byte(`<html>challenge</html>`), "X")
	if err == nil || errors.Is(err, ErrNoData) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestCleanTitle(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"  plain title  ", "plain title"},
		{"<b>Bold</b> title", "Bold title"},
		{"Rock &amp; Roll", "Rock & Roll"},
		{"<script>alert(1)</script>Safe", "Safe"},
	}
	for _, tt := range tests {
		if got := CleanTitle(tt.raw); got != tt.want {
			t.Errorf("CleanTitle(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
