// Package docgen calls the document-generation service that drafts method
// statements and risk assessments, reads vendor documents and recommends
// equipment, plus the separate self-learning reader.
package docgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

var (
	ErrEmptyResponse = errors.New("empty response from document service")
	// ErrNotRecognized is returned when the self-learning reader answers 400,
	// meaning it could not extract anything from the document.
	ErrNotRecognized = errors.New("document not recognized")
	ErrNotConfigured = errors.New("endpoint not configured")
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type Config struct {
	BaseURL          string
	Timeout          time.Duration
	SelfLearnURL     string
	SelfLearnTimeout time.Duration
}

type Client struct {
	baseURL      string
	selfLearnURL string
	http         *http.Client
	selfLearn    *http.Client
}

func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.SelfLearnTimeout <= 0 {
		cfg.SelfLearnTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		selfLearnURL: strings.TrimSpace(cfg.SelfLearnURL),
		http:         &http.Client{Timeout: cfg.Timeout},
		selfLearn:    &http.Client{Timeout: cfg.SelfLearnTimeout},
	}
}

// Snapshot is the project description the MS generator drafts from.
type Snapshot struct {
	ProjectID     int64           `json:"projectid"`
	ClientName    string          `json:"client_name"`
	ProjectName   string          `json:"project_name"`
	StartLocation string          `json:"start_location"`
	EndLocation   string          `json:"end_location"`
	Cargos        []SnapshotCargo `json:"cargos"`
	Scopes        []SnapshotScope `json:"scopes"`
}

type SnapshotCargo struct {
	CargoName  string     `json:"cargo_name"`
	Dimensions Dimensions `json:"dimensions"`
	Quantity   int        `json:"quantity"`
}

type Dimensions struct {
	Length  float64 `json:"length"`
	Breadth float64 `json:"breadth"`
	Height  float64 `json:"height"`
	Weight  float64 `json:"weight"`
}

type SnapshotScope struct {
	Start       string `json:"start"`
	Description string `json:"description"`
	Equipment   string `json:"equipment"`
}

type RARequest struct {
	Scope     string `json:"scope"`
	ProjectID int64  `json:"projectid"`
}

type EquipmentRequest struct {
	Width  float64 `json:"width"`
	Length float64 `json:"length"`
	Height float64 `json:"height"`
	Weight float64 `json:"weight"`
}

// SelfLearnResult is what the reader extracted from an uploaded MS.
type SelfLearnResult struct {
	EquipmentName  string          `json:"equipment_name"`
	ProcedureSteps json.RawMessage `json:"procedure_steps"`
}

func (c *Client) GenerateMS(ctx context.Context, snapshot Snapshot) (json.RawMessage, error) {
	return c.postJSON(ctx, "/generate_ms", snapshot)
}

func (c *Client) GenerateRA(ctx context.Context, req RARequest) (json.RawMessage, error) {
	return c.postJSON(ctx, "/generate_ra", req)
}

// RecommendEquipment returns ErrEmptyResponse when the service answers with
// an empty body.
func (c *Client) RecommendEquipment(ctx context.Context, req EquipmentRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, "/equipment", req)
}

// ReadVendorMS feeds a vendor method statement to the MS reader.
func (c *Client) ReadVendorMS(ctx context.Context, file io.Reader, scope, equipment string) error {
	_, err := c.postMultipart(ctx, c.http, c.baseURL+"/MSReader", "/MSReader", []formFile{{field: "ms", name: "vendorMSFile", body: file}}, map[string]string{
		"scope":     scope,
		"equipment": equipment,
	})
	return err
}

func (c *Client) ReadVendorRA(ctx context.Context, file io.Reader) error {
	_, err := c.postMultipart(ctx, c.http, c.baseURL+"/RAReader", "/RAReader", []formFile{{field: "file", name: "vendorRAFile", body: file}}, nil)
	return err
}

// SelfLearn sends an uploaded MS to the self-learning reader.
func (c *Client) SelfLearn(ctx context.Context, file io.Reader, filename, contentType string) (SelfLearnResult, error) {
	if c.selfLearnURL == "" {
		return SelfLearnResult{}, ErrNotConfigured
	}
	body, err := c.postMultipart(ctx, c.selfLearn, c.selfLearnURL, "selflearn", []formFile{{field: "file", name: filename, contentType: contentType, body: file}}, nil)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusBadRequest {
			return SelfLearnResult{}, ErrNotRecognized
		}
		return SelfLearnResult{}, err
	}
	var result SelfLearnResult
	if err := json.Unmarshal(body, &result); err != nil {
		return SelfLearnResult{}, fmt.Errorf("decode selflearn response: %w", err)
	}
	if strings.TrimSpace(result.EquipmentName) == "" {
		return SelfLearnResult{}, ErrNotRecognized
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (json.RawMessage, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(c.http, req, endpoint)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, ErrEmptyResponse
	}
	if !json.Valid(trimmed) {
		encoded, _ := json.Marshal(string(trimmed))
		return json.RawMessage(encoded), nil
	}
	return json.RawMessage(trimmed), nil
}

type formFile struct {
	field       string
	name        string
	contentType string
	body        io.Reader
}

func (c *Client) postMultipart(ctx context.Context, client *http.Client, url, endpoint string, files []formFile, fields map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, file := range files {
		part, err := createFilePart(writer, file)
		if err != nil {
			return nil, fmt.Errorf("build %s form: %w", endpoint, err)
		}
		if _, err := io.Copy(part, file.body); err != nil {
			return nil, fmt.Errorf("copy %s file: %w", endpoint, err)
		}
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("build %s form: %w", endpoint, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close %s form: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(client, req, endpoint)
}

func createFilePart(writer *multipart.Writer, file formFile) (io.Writer, error) {
	if file.contentType == "" {
		return writer.CreateFormFile(file.field, file.name)
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
	header.Set("Content-Type", file.contentType)
	return writer.CreatePart(header)
}

func (c *Client) do(client *http.Client, req *http.Request, endpoint string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
