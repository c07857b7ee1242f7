// Package backend is the REST client for the Pick & Go marketplace backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pickandgo/onboarding/internal/models"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

var (
	ErrTimeout     = errors.New("backend request timed out")
	ErrBadResponse = errors.New("backend returned an unexpected response")
	ErrUnknownKind = errors.New("unknown agreement kind")
	errMissingFile = errors.New("no file to upload")
)

const maxErrorBodyLen = 64 << 10

// APIError is a response the backend answered with but did not accept.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend error: status %d", e.Status)
	}
	return fmt.Sprintf("backend error: status %d: %s", e.Status, e.Message)
}

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	RPS     float64
	Burst   int
}

// Client calls the marketplace backend. Every call is bounded by the
// configured timeout and paced by a token bucket; nothing is retried.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

// New creates a backend client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: limiter,
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type createVehicleResponse struct {
	envelope
	Vehicle *models.Vehicle `json:"vehicle"`
}

type agreementResponse struct {
	envelope
	Agreement *models.AgreementSnapshot `json:"agreement"`
}

// CreateVehicle creates the vehicle record for ownerID.
func (c *Client) CreateVehicle(ctx context.Context, ownerID string, vehicle models.VehicleSubmission) (*models.Vehicle, error) {
	body, err := json.Marshal(vehicle)
	if err != nil {
		return nil, fmt.Errorf("marshal vehicle: %w", err)
	}
	path := "/vehicles/owner/" + url.PathEscape(ownerID) + "/add"
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out createVehicleResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("create vehicle: %w", err)
	}
	if out.Vehicle == nil || out.Vehicle.ID == "" {
		return nil, fmt.Errorf("create vehicle: %w: missing vehicle id", ErrBadResponse)
	}
	return out.Vehicle, nil
}

// UploadImage uploads a vehicle photo.
func (c *Client) UploadImage(ctx context.Context, vehicleID string, side models.PhotoSide, file *models.StagedFile) error {
	path := "/vehicles/" + url.PathEscape(vehicleID) + "/upload-image"
	if err := c.upload(ctx, path, "vehicleImage", file, map[string]string{"imageType": string(side)}); err != nil {
		return fmt.Errorf("upload %s image: %w", side, err)
	}
	return nil
}

// UploadDocument uploads a vehicle document.
func (c *Client) UploadDocument(ctx context.Context, vehicleID string, docType models.DocumentType, file *models.StagedFile) error {
	path := "/vehicles/" + url.PathEscape(vehicleID) + "/upload-document"
	if err := c.upload(ctx, path, "document", file, map[string]string{"documentType": string(docType)}); err != nil {
		return fmt.Errorf("upload %s document: %w", docType, err)
	}
	return nil
}

// AgreementPreview fetches the current agreement template of kind.
func (c *Client) AgreementPreview(ctx context.Context, kind models.AgreementKind) (*models.AgreementSnapshot, error) {
	var path string
	switch kind {
	case models.AgreementBusiness:
		path = "/business-agreements/preview"
	case models.AgreementClientRental:
		path = "/client-agreements/preview"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var out agreementResponse
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("fetch agreement: %w", err)
	}
	if out.Agreement == nil {
		return nil, fmt.Errorf("fetch agreement: %w: missing agreement", ErrBadResponse)
	}
	return out.Agreement, nil
}

func (c *Client) upload(ctx context.Context, path, fileField string, file *models.StagedFile, fields map[string]string) error {
	if file == nil || len(file.Data) == 0 {
		return errMissingFile
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, file.Name))
	header.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := part.Write(file.Data); err != nil {
		return err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	var out envelope
	return c.do(req, &out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// successReporter lets do check the success flag of any envelope.
type successReporter interface {
	ok() (bool, string)
}

func (e *envelope) ok() (bool, string) { return e.Success, e.Message }

func (c *Client) do(req *http.Request, out successReporter) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return mapTransportError(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env envelope
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &env) == nil && env.Message != "" {
			msg = env.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if ok, msg := out.ok(); !ok {
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	return nil
}

func mapTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
