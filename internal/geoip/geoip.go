// Package geoip resolves source addresses to coarse locations via the
// ip-api.com JSON endpoint. Lookups are best effort: failures, private
// addresses, and timeouts all yield the unknown location, never an
// error on the request path.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultEndpoint = "http://ip-api.com/json"
	lookupTimeout   = 3 * time.Second
	cacheTTL        = 24 * time.Hour
	cacheSize       = 4096
)

// Location is the resolved geography for an address.
type Location struct {
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

// Unknown is returned whenever resolution is not possible.
var Unknown = Location{Country: "Unknown", City: "Unknown", ISP: "Unknown"}

// Client caches lookups for 24 hours.
type Client struct {
	endpoint string
	http     *http.Client
	cache    *expirable.LRU[string, Location]
	logger   *slog.Logger
}

// NewClient builds a client. An empty endpoint selects the default
// public service.
func NewClient(endpoint string, logger *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: lookupTimeout},
		cache:    expirable.NewLRU[string, Location](cacheSize, nil, cacheTTL),
		logger:   logger,
	}
}

// Lookup resolves the address, serving from cache when possible.
// Private and unparsable addresses resolve to a local marker without
// touching the network.
func (c *Client) Lookup(ctx context.Context, ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Unknown
	}
	if parsed.IsPrivate() || parsed.IsLoopback() || parsed.IsUnspecified() {
		return Location{Country: "Local", City: "Local", ISP: "Local"}
	}

	if loc, ok := c.cache.Get(ip); ok {
		return loc
	}

	loc, err := c.fetch(ctx, ip)
	if err != nil {
		c.logger.Debug("geo lookup failed", "ip", ip, "error", err)
		return Unknown
	}
	c.cache.Add(ip, loc)
	return loc
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Country string `json:"country"`
	City    string `json:"city"`
	ISP     string `json:"isp"`
}

func (c *Client) fetch(ctx context.Context, ip string) (Location, error) {
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/%s?fields=status,message,country,city,isp", c.endpoint, ip), nil)
	if err != nil {
		return Location{}, fmt.Errorf("building geo request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("geo request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("geo service returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return Location{}, fmt.Errorf("reading geo response: %w", err)
	}
	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Location{}, fmt.Errorf("parsing geo response: %w", err)
	}
	if parsed.Status != "success" {
		return Location{}, fmt.Errorf("geo lookup rejected: %s", parsed.Message)
	}

	loc := Location{Country: parsed.Country, City: parsed.City, ISP: parsed.ISP}
	if loc.Country == "" {
		loc.Country = "Unknown"
	}
	if loc.City == "" {
		loc.City = "Unknown"
	}
	if loc.ISP == "" {
		loc.ISP = "Unknown"
	}
	return loc, nil
}
