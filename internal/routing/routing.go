// Package routing resolves destination addresses to driving minutes using a
// Nominatim-compatible geocoder and an OSRM-compatible route service.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	appLog "leavetimed/internal/log"
)

// ErrUnavailable is returned for every failure mode of a travel-time
// computation: geocoding miss, no route, timeout, backend down, breaker
// open. Callers treat them all identically, so the distinction only shows
// up in logs.
var ErrUnavailable = errors.New("routing: travel time unavailable")

const defaultTimeout = 5 * time.Second

// Options configures a Client.
type Options struct {
	// GeocodeURL is a Nominatim search endpoint (".../search").
	GeocodeURL string
	// RouteURL is an OSRM driving route base (".../route/v1/driving").
	RouteURL string
	// Origin is the departure address. Geocoded lazily on first use and
	// kept for the life of the client.
	Origin string
	// Timeout bounds one full computation (geocode + route).
	Timeout time.Duration
}

type coordinate struct {
	lat float64
	lon float64
}

// Client computes travel minutes. A circuit breaker sits in front of the
// whole lookup so a dead backend fails fast for the rest of a run instead
// of eating one timeout per located event.
type Client struct {
	http       *http.Client
	geocodeURL string
	routeURL   string
	origin     string
	timeout    time.Duration

	breaker *gobreaker.CircuitBreaker

	originCoord *coordinate
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "routing",
		MaxRequests: 2,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 4 && counts.ConsecutiveFailures >= 4
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			appLog.Info("routing breaker state change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		http:       &http.Client{Timeout: timeout},
		geocodeURL: opts.GeocodeURL,
		routeURL:   opts.RouteURL,
		origin:     opts.Origin,
		timeout:    timeout,
		breaker:    cb,
	}
}

// TravelMinutes returns whole driving minutes from the configured origin to
// address, rounded up. Every failure is reported as ErrUnavailable.
func (c *Client) TravelMinutes(ctx context.Context, address string) (int, error) {
	if c.origin == "" {
		appLog.Error("routing origin not configured", ErrUnavailable)
		return 0, ErrUnavailable
	}

	out, err := c.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.travelMinutes(callCtx, address)
	})
	if err != nil {
		appLog.Error("travel time lookup failed", err, "address", address)
		return 0, ErrUnavailable
	}
	return out.(int), nil
}

func (c *Client) travelMinutes(ctx context.Context, address string) (int, error) {
	origin, err := c.originCoordinate(ctx)
	if err != nil {
		return 0, err
	}
	dest, err := c.geocode(ctx, address)
	if err != nil {
		return 0, err
	}

	seconds, err := c.routeSeconds(ctx, origin, dest)
	if err != nil {
		return 0, err
	}
	return int(math.Ceil(seconds / 60)), nil
}

func (c *Client) originCoordinate(ctx context.Context) (coordinate, error) {
	if c.originCoord != nil {
		return *c.originCoord, nil
	}
	coord, err := c.geocode(ctx, c.origin)
	if err != nil {
		return coordinate{}, fmt.Errorf("geocode origin: %w", err)
	}
	c.originCoord = &coord
	return coord, nil
}

// geocode resolves an address through the Nominatim search endpoint,
// taking the first result.
func (c *Client) geocode(ctx context.Context, address string) (coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("limit", "1")

	body, err := c.get(ctx, c.geocodeURL+"?"+q.Encode())
	if err != nil {
		return coordinate{}, err
	}

	var results []struct {
		Lat string `json:"lat"`
		Lon string `json:"lon"`
	}
	if err := json.Unmarshal(body, &results); err != nil {
		return coordinate{}, fmt.Errorf("decode geocode response: %w", err)
	}
	if len(results) == 0 {
		return coordinate{}, fmt.Errorf("no geocode result for %q", address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return coordinate{}, fmt.Errorf("parse geocode lat: %w", err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return coordinate{}, fmt.Errorf("parse geocode lon: %w", err)
	}
	return coordinate{lat: lat, lon: lon}, nil
}

// routeSeconds asks the OSRM route service for a driving duration.
// OSRM coordinates are lon,lat order.
func (c *Client) routeSeconds(ctx context.Context, from, to coordinate) (float64, error) {
	u := fmt.Sprintf("%s/%f,%f;%f,%f?overview=false",
		c.routeURL, from.lon, from.lat, to.lon, to.lat)

	body, err := c.get(ctx, u)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Code   string `json:"code"`
		Routes []struct {
			Duration float64 `json:"duration"`
		} `json:"routes"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode route response: %w", err)
	}
	if resp.Code != "Ok" || len(resp.Routes) == 0 {
		return 0, fmt.Errorf("no route (code=%q)", resp.Code)
	}
	return resp.Routes[0].Duration, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "leavetimed/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(resp.Status)
	}
	return io.ReadAll(resp.Body)
}
