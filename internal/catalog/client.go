// Package catalog talks to the equipment catalog service, the read-only
// source of truth for whether an equipment item exists and can be booked.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/lab-equipment-reservation/internal/model"
)

// DefaultTimeout bounds a single catalog lookup when none is configured.
const DefaultTimeout = 3 * time.Second

// Client calls GET {baseURL}/equipment/{id}.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient returns a Client for baseURL.  A zero timeout selects
// DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// equipmentResponse accepts both a bare equipment object and one wrapped
// in a {"data": ...} envelope.
type equipmentResponse struct {
	model.Equipment
	Data *model.Equipment `json:"data"`
}

// GetEquipment returns the catalog entry for id.  A 404 yields a not_found
// error; transport failures, timeouts, 5xx responses and undecodable
// bodies yield an unavailable error.
func (c *Client) GetEquipment(ctx context.Context, id string) (model.Equipment, error) {
	endpoint := c.baseURL + "/equipment/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Equipment{}, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return model.Equipment{}, model.Wrap(model.KindUnavailable, "equipment catalog timed out", err)
		}
		return model.Equipment{}, model.Wrap(model.KindUnavailable, "equipment catalog unreachable", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return model.Equipment{}, model.Errorf(model.KindNotFound, "equipment %s not found", id)
	case resp.StatusCode != http.StatusOK:
		return model.Equipment{}, model.Errorf(model.KindUnavailable, "equipment catalog returned %s", resp.Status)
	}

	var body equipmentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return model.Equipment{}, model.Wrap(model.KindUnavailable, "decode catalog response", err)
	}
	eq := body.Equipment
	if body.Data != nil {
		eq = *body.Data
	}
	if eq.ID == "" {
		eq.ID = id
	}
	return eq, nil
}
