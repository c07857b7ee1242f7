// Command onboard lists a vehicle through the onboarding API's wizard from a
// YAML description of the vehicle and its files.
package main

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
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type settings struct {
	APIURL   string        `envconfig:"ONBOARD_API_URL" default:"http://localhost:8080/api"`
	Token    string        `envconfig:"ONBOARD_TOKEN"`
	Username string        `envconfig:"ONBOARD_USERNAME"`
	Password string        `envconfig:"ONBOARD_PASSWORD"`
	Timeout  time.Duration `envconfig:"ONBOARD_TIMEOUT" default:"2m"`
}

// Listing is the vehicle to add. File paths are relative to the listing file.
type Listing struct {
	Fields          map[string]any    `yaml:"fields"`
	Documents       map[string]string `yaml:"documents"`
	Photos          map[string]string `yaml:"photos"`
	AcceptAgreement bool              `yaml:"acceptAgreement"`
}

func loadListing(path string) (*Listing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var l Listing
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for k, v := range l.Fields {
		if t, ok := v.(time.Time); ok {
			l.Fields[k] = t.Format("2006-01-02")
		}
	}
	dir := filepath.Dir(path)
	for _, files := range []map[string]string{l.Documents, l.Photos} {
		for slot, p := range files {
			if !filepath.IsAbs(p) {
				files[slot] = filepath.Join(dir, p)
			}
		}
	}
	return &l, nil
}

// apiError is a non-2xx answer from the onboarding API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("api status %d: %s", e.Status, strings.TrimSpace(e.Body))
}

type session struct {
	ID    string `json:"id"`
	State struct {
		Phase       string `json:"phase"`
		CurrentStep int    `json:"currentStep"`
	} `json:"state"`
	Documents map[string]struct {
		Staged bool     `json:"staged"`
		Errors []string `json:"errors"`
	} `json:"documents"`
	Photos map[string]struct {
		Staged bool     `json:"staged"`
		Errors []string `json:"errors"`
	} `json:"photos"`
	Agreement *struct {
		Snapshot struct {
			Title   string `json:"title"`
			Version string `json:"version"`
		} `json:"snapshot"`
		Fallback bool `json:"fallback"`
	} `json:"agreement"`
}

type client struct {
	baseURL string
	token   string
	http    *http.Client
}

func newClient(baseURL, token string, timeout time.Duration) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *client) send(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	return c.send(ctx, method, path, "application/json", body, out)
}

func (c *client) login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.sendJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &resp)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = resp.Token
	return nil
}

func (c *client) upload(ctx context.Context, path, file string) (*session, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filepath.Base(file)))
	header.Set("Content-Type", mimetype.Detect(data).String())
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	var s session
	if err := c.send(ctx, http.MethodPut, path, mw.FormDataContentType(), &buf, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// onboard walks a session from the first step to submission and returns the
// new vehicle id. The session is cancelled when any step fails.
func (c *client) onboard(ctx context.Context, l *Listing) (vehicleID string, err error) {
	var s session
	if err := c.sendJSON(ctx, http.MethodPost, "/vehicle-wizard", nil, &s); err != nil {
		return "", fmt.Errorf("open session: %w", err)
	}
	base := "/vehicle-wizard/" + s.ID
	logger := log.WithField("session_id", s.ID)
	logger.Info("Opened wizard session")
	defer func() {
		if err != nil && !errors.Is(err, context.Canceled) {
			if cerr := c.sendJSON(context.Background(), http.MethodDelete, base, nil, nil); cerr != nil {
				logger.WithError(cerr).Warn("Failed to cancel session")
			}
		}
	}()

	if err := c.sendJSON(ctx, http.MethodPatch, base+"/fields", map[string]any{"fields": l.Fields}, &s); err != nil {
		return "", fmt.Errorf("set fields: %w", err)
	}
	for _, kind := range []struct {
		route string
		files map[string]string
	}{{"documents", l.Documents}, {"photos", l.Photos}} {
		for _, slot := range sortedKeys(kind.files) {
			got, err := c.upload(ctx, base+"/"+kind.route+"/"+slot, kind.files[slot])
			if err != nil {
				return "", fmt.Errorf("upload %s %s: %w", kind.route, slot, err)
			}
			entry := got.Documents[slot]
			if kind.route == "photos" {
				entry = got.Photos[slot]
			}
			if !entry.Staged {
				return "", fmt.Errorf("%s %s rejected: %s", kind.route, slot, strings.Join(entry.Errors, "; "))
			}
			logger.WithFields(log.Fields{"slot": slot, "file": kind.files[slot]}).Info("Staged file")
		}
	}

	for s.State.Phase == "step" {
		step := s.State.CurrentStep
		if err := c.sendJSON(ctx, http.MethodPost, base+"/next", nil, &s); err != nil {
			return "", fmt.Errorf("step %d: %w", step, err)
		}
	}
	if s.Agreement != nil {
		logger.WithFields(log.Fields{
			"title":    s.Agreement.Snapshot.Title,
			"version":  s.Agreement.Snapshot.Version,
			"fallback": s.Agreement.Fallback,
		}).Info("Agreement shown")
	}
	if !l.AcceptAgreement {
		return "", errors.New("agreement not accepted in listing")
	}
	if err := c.sendJSON(ctx, http.MethodPost, base+"/agreement", map[string]bool{"accepted": true}, &s); err != nil {
		return "", fmt.Errorf("accept agreement: %w", err)
	}

	var result struct {
		VehicleID string `json:"vehicleId"`
	}
	if err := c.sendJSON(ctx, http.MethodPost, base+"/submit", nil, &result); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	return result.VehicleID, nil
}

func run(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: onboard <listing.yaml>")
	}
	var cfg settings
	if err := envconfig.Process("", &cfg); err != nil {
		return err
	}
	listing, err := loadListing(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	c := newClient(cfg.APIURL, cfg.Token, 30*time.Second)
	if c.token == "" {
		if cfg.Username == "" {
			return errors.New("set ONBOARD_TOKEN or ONBOARD_USERNAME and ONBOARD_PASSWORD")
		}
		if err := c.login(ctx, cfg.Username, cfg.Password); err != nil {
			return err
		}
	}

	vehicleID, err := c.onboard(ctx, listing)
	if err != nil {
		return err
	}
	log.WithField("vehicle_id", vehicleID).Info("Vehicle added")
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("Onboarding failed")
	}
}
