// Package geo looks up the server's public location for note metadata.
package geo

import (
	"collabnotes/core"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultURL = "http://ip-api.com/json/"

var fallbacks = []core.GeoData{
	{IP: "0.0.0.0", City: "Unknown", Region: "Unknown", CountryName: "Unknown"},
	{IP: "127.0.0.1", City: "Localhost", Region: "Local", CountryName: "Local"},
}

type Client struct {
	url  string
	http *http.Client
}

func NewClient(url string) *Client {
	if url == "" {
		url = DefaultURL
	}
	return &Client{url: url, http: &http.Client{Timeout: 5 * time.Second}}
}

type ipAPIResponse struct {
	Query      string `json:"query"`
	City       string `json:"city"`
	RegionName string `json:"regionName"`
	Country    string `json:"country"`
}

// Lookup never fails. When the lookup service is unreachable or rate limited it returns
// one of the static fallback locations.
func (c *Client) Lookup(ctx context.Context) *core.GeoData {
	data, err := c.fetch(ctx)
	if err != nil {
		fallback := fallbacks[rand.Intn(len(fallbacks))]
		logrus.WithError(err).WithField("fallback", fallback.City).Warn("Geolocation lookup failed")
		return &fallback
	}
	return data
}

func (c *Client) fetch(ctx context.Context) (*core.GeoData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return &core.GeoData{
		IP:          body.Query,
		City:        body.City,
		Region:      body.RegionName,
		CountryName: body.Country,
	}, nil
}
