// Package traccar implements ports.TrackingAPI against a Traccar-style REST
// backend using fasthttp.
package traccar

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/fleetview/internal/core/domain"
	"github.com/samirrijal/fleetview/internal/core/ports"
	"github.com/samirrijal/fleetview/internal/pkg/metrics"
)

// Doer sends one request. *fasthttp.Client satisfies it.
type Doer interface {
	DoTimeout(req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	User     string
	Password string
	Token    string
	Timeout  time.Duration
}

// Client implements ports.TrackingAPI.
type Client struct {
	doer    Doer
	base    *url.URL
	auth    string
	timeout time.Duration
}

// New creates a Client. doer may be nil, in which case a fasthttp.Client
// with sane limits is used.
func New(opts Options, doer Doer) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", opts.BaseURL)
	}
	// Relative endpoints like "devices" resolve under the base path only
	// when it ends in a slash.
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if doer == nil {
		doer = &fasthttp.Client{
			Name:                "fleetview",
			MaxConnsPerHost:     16,
			ReadTimeout:         opts.Timeout,
			WriteTimeout:        opts.Timeout,
			MaxIdleConnDuration: 30 * time.Second,
		}
	}

	c := &Client{doer: doer, base: base, timeout: opts.Timeout}
	switch {
	case opts.Token != "":
		c.auth = "Bearer " + opts.Token
	case opts.User != "":
		c.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(opts.User+":"+opts.Password))
	}
	return c, nil
}

// Devices calls GET devices.
func (c *Client) Devices(ctx context.Context) ([]domain.Device, error) {
	var out []domain.Device
	if err := c.get(ctx, "devices", "devices", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Session calls GET session.
func (c *Client) Session(ctx context.Context) (domain.Session, error) {
	var out domain.Session
	if err := c.get(ctx, "session", "session", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Geofences calls GET /geofences.
func (c *Client) Geofences(ctx context.Context) ([]domain.Geofence, error) {
	var out []domain.Geofence
	if err := c.get(ctx, "geofences", "/geofences", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Route calls GET /reports/route for one device.
func (c *Client) Route(ctx context.Context, deviceID int64, from, to string) ([]domain.RoutePoint, error) {
	q := url.Values{}
	q.Set("deviceId", strconv.FormatInt(deviceID, 10))
	q.Set("from", from)
	q.Set("to", to)

	var out []domain.RoutePoint
	if err := c.get(ctx, "reports_route", "/reports/route?"+q.Encode(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve joins ref onto the base URL. A leading slash stays relative to the
// base path: with a base of https://host/api/, /geofences maps to
// https://host/api/geofences.
func (c *Client) resolve(ref string) string {
	return c.base.String() + strings.TrimPrefix(ref, "/")
}

func (c *Client) get(ctx context.Context, endpoint, ref string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	target := c.resolve(ref)
	req.SetRequestURI(target)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	if c.auth != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, c.auth)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	start := time.Now()
	err := c.doer.DoTimeout(req, resp, timeout)
	metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.BackendRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("GET %s: %w", target, err)
	}

	status := resp.StatusCode()
	metrics.BackendRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	if status < 200 || status > 299 {
		return fmt.Errorf("%w: HTTP %d from %s", ports.ErrUnexpectedStatus, status, target)
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("%w: decode %s: %v", ports.ErrMalformedResponse, endpoint, err)
	}
	return nil
}
