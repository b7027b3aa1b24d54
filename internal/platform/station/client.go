// Package station provides the HTTP client for the external dispatch
// system's API. The companion service consumes it for care request
// snapshots, patient record lookups, and timeline notes.
package station

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/domain"
	"github.com/phrazzld/companion-api/internal/platform/logger"
)

// ErrUnexpectedStatus indicates the dispatch system answered with a
// status code the client does not handle.
var ErrUnexpectedStatus = errors.New("unexpected response status")

// Client is the dispatch-system API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a dispatch API client from configuration.
// If logger is nil, a default logger will be used.
func NewClient(cfg config.StationConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "station_client")),
	}
}

// GetCareRequest fetches the current snapshot of a care request.
// Returns domain.ErrCareRequestNotFound if the dispatch system does
// not know the id.
func (c *Client) GetCareRequest(ctx context.Context, careRequestID int64) (*domain.CareRequestSnapshot, error) {
	var snapshot domain.CareRequestSnapshot
	path := fmt.Sprintf("/api/care_requests/%d", careRequestID)
	if err := c.getJSON(ctx, path, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// HasIdentificationImage reports whether the patient on the care
// request has an identification image on file.
func (c *Client) HasIdentificationImage(ctx context.Context, careRequestID int64) (bool, error) {
	var decoded struct {
		DriversLicenseURL string `json:"drivers_license_url"`
	}
	path := fmt.Sprintf("/api/care_requests/%d/patient/identification_image", careRequestID)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return false, err
	}
	return decoded.DriversLicenseURL != "", nil
}

// ListInsurances fetches the patient's insurance records for a care
// request, reduced to slot priority and card image presence. Self-pay
// insurances never require images and report as captured.
func (c *Client) ListInsurances(ctx context.Context, careRequestID int64) ([]domain.InsuranceRecord, error) {
	var decoded []struct {
		ID        int64  `json:"id"`
		Priority  string `json:"priority"`
		SelfPay   bool   `json:"self_pay"`
		CardFront string `json:"card_front_url"`
		CardBack  string `json:"card_back_url"`
	}
	path := fmt.Sprintf("/api/care_requests/%d/patient/insurances", careRequestID)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return nil, err
	}

	records := make([]domain.InsuranceRecord, 0, len(decoded))
	for _, ins := range decoded {
		records = append(records, domain.InsuranceRecord{
			Priority:  ins.Priority,
			HasImages: ins.SelfPay || (ins.CardFront != "" && ins.CardBack != ""),
		})
	}
	return records, nil
}

// HasDefaultPharmacy reports whether the patient has a default
// pharmacy on file.
func (c *Client) HasDefaultPharmacy(ctx context.Context, careRequestID int64) (bool, error) {
	var decoded struct {
		DefaultPharmacy *struct {
			ClinicalProviderID string `json:"clinical_provider_id"`
		} `json:"default_pharmacy"`
	}
	path := fmt.Sprintf("/api/care_requests/%d/patient/default_pharmacy", careRequestID)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return false, err
	}
	return decoded.DefaultPharmacy != nil && decoded.DefaultPharmacy.ClinicalProviderID != "", nil
}

// SetDefaultPharmacy records the patient's default pharmacy.
func (c *Client) SetDefaultPharmacy(ctx context.Context, careRequestID int64, clinicalProviderID string) error {
	path := fmt.Sprintf("/api/care_requests/%d/patient/default_pharmacy", careRequestID)
	body := map[string]string{"clinical_provider_id": clinicalProviderID}
	return c.send(ctx, http.MethodPut, path, body, nil)
}

// SetPrimaryCareProvider records the patient's chosen primary care
// provider.
func (c *Client) SetPrimaryCareProvider(ctx context.Context, careRequestID int64, clinicalProviderID string) error {
	path := fmt.Sprintf("/api/care_requests/%d/patient/primary_care_provider", careRequestID)
	body := map[string]string{"clinical_provider_id": clinicalProviderID}
	return c.send(ctx, http.MethodPut, path, body, nil)
}

// HasMedicationHistoryConsent reports whether the patient has granted
// medication history authority.
func (c *Client) HasMedicationHistoryConsent(ctx context.Context, careRequestID int64) (bool, error) {
	var decoded struct {
		Granted bool `json:"medication_history_consent"`
	}
	path := fmt.Sprintf("/api/care_requests/%d/patient/medication_history_consent", careRequestID)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return false, err
	}
	return decoded.Granted, nil
}

// GrantMedicationHistoryConsent records the patient's medication
// history authority consent.
func (c *Client) GrantMedicationHistoryConsent(ctx context.Context, careRequestID int64) error {
	path := fmt.Sprintf("/api/care_requests/%d/patient/medication_history_consent", careRequestID)
	body := map[string]bool{"medication_history_consent": true}
	return c.send(ctx, http.MethodPut, path, body, nil)
}

// ListConsentDefinitions fetches the consent definitions applicable to
// a care request.
func (c *Client) ListConsentDefinitions(ctx context.Context, careRequestID int64) ([]domain.ConsentDefinition, error) {
	var decoded []struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Required bool   `json:"required"`
	}
	path := fmt.Sprintf("/api/care_requests/%d/consents/definitions", careRequestID)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return nil, err
	}

	definitions := make([]domain.ConsentDefinition, 0, len(decoded))
	for _, def := range decoded {
		definitions = append(definitions, domain.ConsentDefinition(def))
	}
	return definitions, nil
}

// noteDTO is the wire shape of a timeline note.
type noteDTO struct {
	ID         int64           `json:"id,omitempty"`
	Kind       string          `json:"note_kind"`
	Body       string          `json:"note"`
	InTimeline bool            `json:"in_timeline"`
	Metadata   json.RawMessage `json:"meta_data,omitempty"`
}

func (d noteDTO) toDomain() domain.CareRequestNote {
	return domain.CareRequestNote{
		ID:         d.ID,
		Kind:       d.Kind,
		Body:       d.Body,
		InTimeline: d.InTimeline,
		Metadata:   d.Metadata,
	}
}

func noteFromDomain(note domain.CareRequestNote) noteDTO {
	return noteDTO{
		ID:         note.ID,
		Kind:       note.Kind,
		Body:       note.Body,
		InTimeline: note.InTimeline,
		Metadata:   note.Metadata,
	}
}

// ListNotes fetches the timeline notes of the given kind for a care
// request.
func (c *Client) ListNotes(ctx context.Context, careRequestID int64, kind string) ([]domain.CareRequestNote, error) {
	var decoded []noteDTO
	path := fmt.Sprintf("/api/care_requests/%d/notes?note_kind=%s", careRequestID, kind)
	if err := c.getJSON(ctx, path, &decoded); err != nil {
		return nil, err
	}

	notes := make([]domain.CareRequestNote, 0, len(decoded))
	for _, note := range decoded {
		notes = append(notes, note.toDomain())
	}
	return notes, nil
}

// CreateNote adds a timeline note to a care request.
func (c *Client) CreateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error {
	path := fmt.Sprintf("/api/care_requests/%d/notes", careRequestID)
	return c.send(ctx, http.MethodPost, path, noteFromDomain(note), nil)
}

// UpdateNote replaces the body and metadata of an existing note.
func (c *Client) UpdateNote(ctx context.Context, careRequestID int64, note domain.CareRequestNote) error {
	path := fmt.Sprintf("/api/care_requests/%d/notes/%d", careRequestID, note.ID)
	return c.send(ctx, http.MethodPut, path, noteFromDomain(note), nil)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.send(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("dispatch API request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrCareRequestNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		log.Error("dispatch API returned unexpected status",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: %d on %s %s", ErrUnexpectedStatus, resp.StatusCode, method, path)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}
