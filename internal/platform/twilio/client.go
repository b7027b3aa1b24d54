// Package twilio provides the Studio Flow client used to send
// patient-facing SMS notifications.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/phrazzld/companion-api/internal/config"
	"github.com/phrazzld/companion-api/internal/platform/logger"
)

const defaultBaseURL = "https://studio.twilio.com"

// ErrExecutionFailed indicates Twilio rejected the flow execution.
var ErrExecutionFailed = errors.New("studio flow execution failed")

// Client executes Twilio Studio Flows over the REST API.
type Client struct {
	baseURL    string
	accountSID string
	authToken  string
	fromNumber string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Studio Flow client from configuration.
// If logger is nil, a default logger will be used.
func NewClient(cfg config.TwilioConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    defaultBaseURL,
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		fromNumber: cfg.FromNumber,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger.With(slog.String("component", "twilio_client")),
	}
}

// ExecuteFlow starts one execution of the given Studio Flow towards
// toNumber, passing params as flow parameters.
func (c *Client) ExecuteFlow(ctx context.Context, flowSID, toNumber string, params map[string]string) error {
	log := logger.FromContextOrDefault(ctx, c.logger)

	parameters, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode flow parameters: %w", err)
	}

	form := url.Values{}
	form.Set("To", toNumber)
	form.Set("From", c.fromNumber)
	form.Set("Parameters", string(parameters))

	endpoint := fmt.Sprintf("%s/v2/Flows/%s/Executions", c.baseURL, flowSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build flow execution request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("studio flow request failed",
			slog.String("flow_sid", flowSID),
			slog.String("error", err.Error()))
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error("studio flow execution rejected",
			slog.String("flow_sid", flowSID),
			slog.Int("status", resp.StatusCode))
		return fmt.Errorf("%w: status %d", ErrExecutionFailed, resp.StatusCode)
	}

	log.Info("studio flow execution started",
		slog.String("flow_sid", flowSID))
	return nil
}
