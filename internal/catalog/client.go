// Package catalog talks to the content service that owns presentations and
// device assignments.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"slidekiosk/internal/playback"
)

// ErrNotFound is returned when the service has no presentation or device
// matching the requested identifier.
var ErrNotFound = errors.New("catalog: not found")

// Summary is the list-view projection of a presentation.
type Summary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SlideCount int    `json:"slideCount"`
}

// Device is a registered kiosk as the service sees it.
type Device struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PresentationID string `json:"presentationId,omitempty"`
}

// Client is an HTTP client for the catalog service.
type Client struct {
	base   string
	client *http.Client
	log    zerolog.Logger
}

// NewClient builds a client against baseURL, e.g. "https://cms.example.com".
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: timeout},
		log:    log.With().Str("component", "catalog").Logger(),
	}
}

// LoadPresentation fetches the full slide sequence for id.
func (c *Client) LoadPresentation(ctx context.Context, id string) (*playback.Presentation, error) {
	var pres playback.Presentation
	if err := c.getJSON(ctx, "/api/presentations/"+id, &pres); err != nil {
		return nil, err
	}
	if err := pres.Validate(); err != nil {
		return nil, fmt.Errorf("presentation %s: %w", id, err)
	}
	return &pres, nil
}

// ListPresentations fetches the summaries of every published presentation.
func (c *Client) ListPresentations(ctx context.Context) ([]Summary, error) {
	var out []Summary
	if err := c.getJSON(ctx, "/api/presentations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetDevice fetches the device record, including its current assignment.
func (c *Client) GetDevice(ctx context.Context, id string) (*Device, error) {
	var dev Device
	if err := c.getJSON(ctx, "/api/devices/"+id, &dev); err != nil {
		return nil, err
	}
	return &dev, nil
}

// RegisterDevice creates a device record with a fresh identifier and the
// given display name, returning the record the service stored.
func (c *Client) RegisterDevice(ctx context.Context, name string) (*Device, error) {
	dev := Device{ID: uuid.NewString(), Name: name}
	body, err := json.Marshal(dev)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/devices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registering device: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("registering device: status %d", resp.StatusCode)
	}

	var stored Device
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decoding device: %w", err)
	}
	c.log.Info().Str("device", stored.ID).Str("name", stored.Name).Msg("device registered")
	return &stored, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	default:
		return fmt.Errorf("fetching %s: status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
