package geoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/immersup/immersup-api/pkg/config"
)

// Pair is a (code, label) lookup result.
type Pair struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

// Client queries the French geo API (geo.api.gouv.fr) for departments,
// communes and zip codes. Every failure degrades to empty suggestions:
// record edition must never break on a lookup outage.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient builds a geo API client.
func NewClient(cfg config.GeoAPIConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// Departments returns all French departments as (code, name) pairs.
func (c *Client) Departments(ctx context.Context) []Pair {
	var results []struct {
		Nom  string `json:"nom"`
		Code string `json:"code"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/departements?fields=nom,code", &results); err != nil {
		c.logger.Warn("geoapi departments lookup failed", zap.Error(err))
		return nil
	}
	pairs := make([]Pair, 0, len(results))
	for _, r := range results {
		pairs = append(pairs, Pair{Code: r.Code, Label: r.Nom})
	}
	return pairs
}

// Cities returns the communes of a department, upper-cased per the
// platform's city normalization.
func (c *Client) Cities(ctx context.Context, depCode string) []Pair {
	if depCode == "" {
		return nil
	}
	var results []struct {
		Nom string `json:"nom"`
	}
	endpoint := fmt.Sprintf("%s/departements/%s/communes?fields=nom", c.baseURL, url.PathEscape(depCode))
	if err := c.getJSON(ctx, endpoint, &results); err != nil {
		c.logger.Warn("geoapi cities lookup failed", zap.String("department", depCode), zap.Error(err))
		return nil
	}
	pairs := make([]Pair, 0, len(results))
	for _, r := range results {
		name := strings.ToUpper(r.Nom)
		pairs = append(pairs, Pair{Code: name, Label: name})
	}
	return pairs
}

// ZipCodes returns the postal codes of a commune, sorted.
func (c *Client) ZipCodes(ctx context.Context, depCode, city string) []Pair {
	if depCode == "" || city == "" {
		return nil
	}
	var results []struct {
		Nom          string   `json:"nom"`
		CodesPostaux []string `json:"codesPostaux"`
	}
	endpoint := fmt.Sprintf("%s/departements/%s/communes?fields=nom,codesPostaux", c.baseURL, url.PathEscape(depCode))
	if err := c.getJSON(ctx, endpoint, &results); err != nil {
		c.logger.Warn("geoapi zipcodes lookup failed", zap.String("department", depCode), zap.Error(err))
		return nil
	}
	for _, r := range results {
		if strings.EqualFold(r.Nom, city) {
			codes := append([]string(nil), r.CodesPostaux...)
			sort.Strings(codes)
			pairs := make([]Pair, 0, len(codes))
			for _, code := range codes {
				pairs = append(pairs, Pair{Code: code, Label: code})
			}
			return pairs
		}
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geoapi status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
