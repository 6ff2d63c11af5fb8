// Package extractor turns raw upstream responses into observation records.
package extractor

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"bamwatch/internal/model"
)

// ErrNoData marks a well-formed response that carries no product or store
// information for the requested PID.
var ErrNoData = errors.New("response carries no product data")

var titlePolicy = bluemonday.StrictPolicy()

type bullseyeResponse struct {
	PidInfo    *bullseyePidInfo `json:"pidinfo"`
	ResultList []bullseyeStore  `json:"ResultList"`
}

type bullseyePidInfo struct {
	Title       string `json:"title"`
	RetailPrice string `json:"retail_price"`
	TDURL       string `json:"td_url"`
	ImageURL    string `json:"image_url"`
}

type bullseyeStore struct {
	StoreNumber  json.Number `json:"StoreNumber"`
	Name         string      `json:"Name"`
	Address1     string      `json:"Address1"`
	Address2     string      `json:"Address2"`
	City         string      `json:"City"`
	State        string      `json:"State"`
	PostCode     string      `json:"PostCode"`
	PhoneNumber  string      `json:"PhoneNumber"`
	Distance     json.Number `json:"Distance"`
	Availability string      `json:"Availability"`
	QtyOnHand    *int        `json:"QtyOnHand"`
}

// ParseBullseye decodes a bullseye store-availability response into an
// observation for the given PID.
func ParseBullseye(body []byte, pid string) (*model.Observation, error) {
	var resp bullseyeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode bullseye response: %w", err)
	}
	if resp.PidInfo == nil && len(resp.ResultList) == 0 {
		return nil, ErrNoData
	}

	obs := &model.Observation{PID: pid}
	if resp.PidInfo != nil {
		obs.Title = CleanTitle(resp.PidInfo.Title)
		obs.Price = strings.TrimSpace(resp.PidInfo.RetailPrice)
		obs.URL = strings.TrimSpace(resp.PidInfo.TDURL)
		obs.Image = strings.TrimSpace(resp.PidInfo.ImageURL)
	}

	for _, st := range resp.ResultList {
		address := strings.TrimSpace(st.Address1 + " " + st.Address2)
		obs.Stores = append(obs.Stores, model.ObservedStore{
			StoreID:      st.StoreNumber.String(),
			Availability: st.Availability,
			Quantity:     st.QtyOnHand,
			Name:         st.Name,
			Address:      address,
			City:         st.City,
			State:        st.State,
			Zip:          st.PostCode,
			Phone:        st.PhoneNumber,
			Distance:     st.Distance.String(),
		})
	}
	return obs, nil
}

// CleanTitle strips markup and entities from an upstream title.
func CleanTitle(raw string) string {
	return strings.TrimSpace(html.UnescapeString(titlePolicy.Sanitize(raw)))
}
