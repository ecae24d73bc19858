package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/caseflow/pkg/schema"
)

const defaultClientTimeout = 30 * time.Second

// Client talks to the engine's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an engine REST client for the given base URL
// (e.g. "http://engine:8080/engine-rest").
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultClientTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
}

func (c *Client) DefinitionByID(ctx context.Context, id string) (*ProcessDefinition, error) {
	var def ProcessDefinition
	if err := c.getJSON(ctx, "/process-definition/"+url.PathEscape(id), &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *Client) LatestDefinitionByKey(ctx context.Context, key string) (*ProcessDefinition, error) {
	var def ProcessDefinition
	if err := c.getJSON(ctx, "/process-definition/key/"+url.PathEscape(key), &def); err != nil {
		return nil, err
	}
	return &def, nil
}

func (c *Client) InstanceByID(ctx context.Context, id string) (*ProcessInstance, error) {
	var inst ProcessInstance
	if err := c.getJSON(ctx, "/process-instance/"+url.PathEscape(id), &inst); err != nil {
		return nil, err
	}
	return &inst, nil
}

func (c *Client) TaskByID(ctx context.Context, id string) (*Task, error) {
	var task Task
	if err := c.getJSON(ctx, "/task/"+url.PathEscape(id), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) ProcessModel(ctx context.Context, definitionID string) ([]byte, error) {
	var body struct {
		ID  string `json:"id"`
		XML string `json:"bpmn20Xml"`
	}
	if err := c.getJSON(ctx, "/process-definition/"+url.PathEscape(definitionID)+"/xml", &body); err != nil {
		return nil, err
	}
	return []byte(body.XML), nil
}

func (c *Client) CreateIncident(ctx context.Context, inc Incident) error {
	payload, err := json.Marshal(map[string]string{
		"incidentType":  inc.Type,
		"message":       inc.Message,
		"configuration": inc.Detail,
	})
	if err != nil {
		return fmt.Errorf("marshal incident: %w", err)
	}
	path := "/execution/" + url.PathEscape(inc.ExecutionID) + "/create-incident"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build incident request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeEngine, "create incident: %s", err.Error()).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return c.statusError(resp, path)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeEngine, "engine request %s: %s", path, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return schema.NewErrorf(schema.ErrCodeEngine, "decode engine response %s: %s", path, err.Error()).WithCause(err)
	}
	return nil
}

func (c *Client) statusError(resp *http.Response, path string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode == http.StatusNotFound {
		return schema.NewErrorf(schema.ErrCodeNotFound, "engine resource %s not found", path)
	}
	return schema.NewErrorf(schema.ErrCodeEngine, "engine request %s: status %d", path, resp.StatusCode).
		WithDetails(map[string]any{"body": string(snippet)})
}

var _ Services = (*Client)(nil)
