package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pickandgo/onboarding/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL + "/api/", APIKey: "svc-key", Timeout: 2 * time.Second})
}

func TestClient_CreateVehicle(t *testing.T) {
	weekly := 280.0
	sub := models.VehicleSubmission{
		Make:        "Toyota",
		Model:       "Aqua",
		Year:        2018,
		RentalPrice: models.RentalPrice{DailyRate: 45, WeeklyRate: &weekly, SecurityDeposit: 100, Currency: "USD"},
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/vehicles/owner/owner-1/add", r.URL.Path)
		assert.Equal(t, "Bearer svc-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.NotContains(t, body, "pricing")
		price, ok := body["rentalPrice"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, 45.0, price["dailyRate"])
		assert.Equal(t, 280.0, price["weeklyRate"])
		assert.NotContains(t, price, "monthlyRate")

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"success":true,"vehicle":{"_id":"veh-1","make":"Toyota","status":"pending"}}`)
	})

	vehicle, err := client.CreateVehicle(context.Background(), "owner-1", sub)
	require.NoError(t, err)
	assert.Equal(t, "veh-1", vehicle.ID)
	assert.Equal(t, "pending", vehicle.Status)
}

func TestClient_CreateVehicle_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"success":false,"message":"database unavailable"}`)
	})

	_, err := client.CreateVehicle(context.Background(), "owner-1", models.VehicleSubmission{})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
	assert.Equal(t, "database unavailable", apiErr.Message)
}

func TestClient_CreateVehicle_PlainTextError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})

	_, err := client.CreateVehicle(context.Background(), "owner-1", models.VehicleSubmission{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "bad gateway", apiErr.Message)
}

func TestClient_CreateVehicle_UnsuccessfulEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":false,"message":"License plate already registered"}`)
	})

	_, err := client.CreateVehicle(context.Background(), "owner-1", models.VehicleSubmission{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Contains(t, err.Error(), "License plate already registered")
}

func TestClient_CreateVehicle_MissingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true,"vehicle":{}}`)
	})

	_, err := client.CreateVehicle(context.Background(), "owner-1", models.VehicleSubmission{})
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_CreateVehicle_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.CreateVehicle(context.Background(), "owner-1", models.VehicleSubmission{})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClient_UploadImage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vehicles/veh-1/upload-image", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "front", r.FormValue("imageType"))

		file, header, err := r.FormFile("vehicleImage")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "front.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("jpeg-bytes"), data)

		io.WriteString(w, `{"success":true}`)
	})

	err := client.UploadImage(context.Background(), "veh-1", models.PhotoFront, &models.StagedFile{
		Name: "front.jpg", ContentType: "image/jpeg", Data: []byte("jpeg-bytes"),
	})
	require.NoError(t, err)
}

func TestClient_UploadDocument(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/vehicles/veh-1/upload-document", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "emissionTest", r.FormValue("documentType"))
		_, header, err := r.FormFile("document")
		require.NoError(t, err)
		assert.Equal(t, "emission.pdf", header.Filename)

		io.WriteString(w, `{"success":true}`)
	})

	err := client.UploadDocument(context.Background(), "veh-1", models.DocumentEmissionTest, &models.StagedFile{
		Name: "emission.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
}

func TestClient_UploadDocument_Failure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		io.WriteString(w, `{"success":false,"message":"file too large"}`)
	})

	err := client.UploadDocument(context.Background(), "veh-1", models.DocumentInsurance, &models.StagedFile{
		Name: "ins.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4"),
	})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
	assert.Contains(t, err.Error(), "insurance document")
}

func TestClient_UploadWithoutFile(t *testing.T) {
	client := New(Config{BaseURL: "http://127.0.0.1:0"})
	assert.Error(t, client.UploadImage(context.Background(), "veh-1", models.PhotoBack, nil))
	assert.Error(t, client.UploadDocument(context.Background(), "veh-1", models.DocumentInsurance, &models.StagedFile{}))
}

func TestClient_AgreementPreview(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/business-agreements/preview":
			io.WriteString(w, `{"success":true,"agreement":{"title":"Business Agreement","version":"2.1","lastModified":"2025-03-04T10:00:00.000Z","terms":[{"sectionTitle":"Scope","content":"Terms."}]}}`)
		case "/api/client-agreements/preview":
			io.WriteString(w, `{"success":false,"message":"not published"}`)
		default:
			http.NotFound(w, r)
		}
	})

	snap, err := client.AgreementPreview(context.Background(), models.AgreementBusiness)
	require.NoError(t, err)
	assert.Equal(t, "2.1", snap.Version)
	assert.Equal(t, 2025, snap.LastModified.Year())
	require.Len(t, snap.Terms, 1)
	assert.Equal(t, "Scope", snap.Terms[0].SectionTitle)

	_, err = client.AgreementPreview(context.Background(), models.AgreementClientRental)
	assert.Error(t, err)

	_, err = client.AgreementPreview(context.Background(), "partner")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestClient_RateLimitedRespectsContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"success":true}`)
	})
	client.limiter.SetLimit(0.001)
	client.limiter.SetBurst(1)

	require.NoError(t, client.UploadImage(context.Background(), "veh-1", models.PhotoFront, &models.StagedFile{
		Name: "a.jpg", ContentType: "image/jpeg", Data: []byte("x"),
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.UploadImage(ctx, "veh-1", models.PhotoBack, &models.StagedFile{
		Name: "b.jpg", ContentType: "image/jpeg", Data: []byte("x"),
	})
	assert.Error(t, err)
}

func TestAPIError_Error(t *testing.T) {
	assert.Equal(t, "backend error: status 502", (&APIError{Status: 502}).Error())
	assert.Equal(t, "backend error: status 400: bad", (&APIError{Status: 400, Message: "bad"}).Error())
}
