package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"novafreight-system/config"
	"novafreight-system/internal/coordinator"
	"novafreight-system/internal/platform/apierr"
)

// ServiceClients bundles one HTTP client per backend service. Every service
// exposes an internal lookup surface (/internal/<entity>/:id/exists and
// /internal/<entity>/:id) consumed through these clients.
type ServiceClients struct {
	User    *Client
	Cargo   *Client
	Storage *Client
	Mission *Client

	httpClient *http.Client
}

func NewServiceClients(cfg config.ServicesConfig) *ServiceClients {
	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &ServiceClients{
		User:       &Client{baseURL: cfg.UserURL, http: httpClient},
		Cargo:      &Client{baseURL: cfg.CargoURL, http: httpClient},
		Storage:    &Client{baseURL: cfg.StorageURL, http: httpClient},
		Mission:    &Client{baseURL: cfg.MissionURL, http: httpClient},
		httpClient: httpClient,
	}
}

func (c *ServiceClients) Close() {
	c.httpClient.CloseIdleConnections()
}

// Client talks to one backend service.
type Client struct {
	baseURL string
	http    *http.Client
}

// envelope is the response shape every service writes.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) (int, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return resp.StatusCode, fmt.Errorf("malformed response from %s: %w", req.URL.Path, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return resp.StatusCode, fmt.Errorf("%s: %s", req.URL.Path, env.Message)
	}

	if out != nil && env.Data != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

// Directory checks existence of one entity kind through a service's internal
// lookup endpoint. It satisfies the reference validator's directory contract.
type Directory struct {
	client *Client
	entity string
}

func NewDirectory(client *Client, entity string) *Directory {
	return &Directory{client: client, entity: entity}
}

type existsPayload struct {
	Exists bool `json:"exists"`
}

func (d *Directory) ExistsByID(ctx context.Context, id int64) (bool, error) {
	var payload existsPayload
	status, err := d.client.getJSON(ctx, fmt.Sprintf("/internal/%s/%d/exists", d.entity, id), &payload)
	if err != nil {
		return false, err
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%s exists lookup returned status %d", d.entity, status)
	}
	return payload.Exists, nil
}

// CargoClient resolves cargo footprints from the cargo service.
type CargoClient struct {
	client *Client
}

func NewCargoClient(client *Client) *CargoClient {
	return &CargoClient{client: client}
}

type cargoPayload struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	MassPerUnit   string `json:"mass_per_unit"`
	VolumePerUnit string `json:"volume_per_unit"`
}

func (c *CargoClient) CargoByID(ctx context.Context, id int64) (*coordinator.CargoInfo, error) {
	var payload cargoPayload
	status, err := c.client.getJSON(ctx, fmt.Sprintf("/internal/cargo/%d", id), &payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, apierr.NotFound("cargo", id)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("cargo lookup returned status %d", status)
	}

	mass, err := decimal.NewFromString(payload.MassPerUnit)
	if err != nil {
		return nil, fmt.Errorf("cargo %d has malformed mass_per_unit %q", id, payload.MassPerUnit)
	}
	volume, err := decimal.NewFromString(payload.VolumePerUnit)
	if err != nil {
		return nil, fmt.Errorf("cargo %d has malformed volume_per_unit %q", id, payload.VolumePerUnit)
	}

	return &coordinator.CargoInfo{
		ID:            payload.ID,
		Name:          payload.Name,
		MassPerUnit:   mass,
		VolumePerUnit: volume,
	}, nil
}
