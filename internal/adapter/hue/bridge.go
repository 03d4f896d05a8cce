package hue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"github.com/nerrad567/homehub-core/internal/adapter"
	"github.com/nerrad567/homehub-core/internal/device"
)

// bridgeError is one {"error": {...}} entry of a bridge response.
type bridgeError struct {
	Type        int    `json:"type"`
	Address     string `json:"address"`
	Description string `json:"description"`
}

// bridgeResult is one entry of the array the bridge returns for writes.
type bridgeResult struct {
	Success map[string]any `json:"success,omitempty"`
	Error   *bridgeError   `json:"error,omitempty"`
}

// putState sends PUT /lights/{id}/state. The body is built as a map so only
// the fields being changed are sent.
func (a *Adapter) putState(ctx context.Context, d *device.Device, body map[string]any) error {
	if err := checkLightID(d); err != nil {
		return err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: encoding state: %w", adapter.ErrValidation, err)
	}

	raw, err := a.do(ctx, http.MethodPut, fmt.Sprintf("/lights/%d/state", d.Config.LightID), payload)
	if err != nil {
		return err
	}

	var results []bridgeResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return fmt.Errorf("%w: bridge response is not a result array: %w", adapter.ErrProtocol, err)
	}
	if len(results) == 0 {
		return fmt.Errorf("%w: bridge returned an empty result", adapter.ErrProtocol)
	}
	for _, r := range results {
		if r.Error != nil {
			return fmt.Errorf("%w: bridge rejected %s: %s (type %d)",
				adapter.ErrProtocol, r.Error.Address, r.Error.Description, r.Error.Type)
		}
	}
	return nil
}

// get reads a resource. The bridge reports lookup failures as a 200 with an
// error array, which is detected before decoding into out.
func (a *Adapter) get(ctx context.Context, path string, out any) error {
	raw, err := a.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '[' {
		var results []bridgeResult
		if err := json.Unmarshal(trimmed, &results); err == nil {
			for _, r := range results {
				if r.Error != nil {
					return fmt.Errorf("%w: %s: %s", adapter.ErrProtocol, path, r.Error.Description)
				}
			}
		}
		return fmt.Errorf("%w: unexpected array from %s", adapter.ErrProtocol, path)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: decoding %s: %w", adapter.ErrProtocol, path, err)
	}
	return nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", adapter.ErrValidation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, adapter.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, adapter.ClassifyTransport(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s %s returned HTTP %d", adapter.ErrProtocol, method, path, resp.StatusCode)
	}
	return raw, nil
}

func sortByLightID(ds []device.Device) {
	slices.SortFunc(ds, func(x, y device.Device) int {
		if c := x.Config.LightID - y.Config.LightID; c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
}
