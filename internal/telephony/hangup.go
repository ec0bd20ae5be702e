package telephony

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const defaultRESTBaseURL = "https://api.twilio.com"

// HangupClient terminates live calls through the provider's REST control
// channel. It is used only for the farewell hang-up, after the goodbye audio
// has drained.
type HangupClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

// HangupOption is a functional option for [HangupClient].
type HangupOption func(*HangupClient)

// WithRESTBaseURL overrides the provider API base URL. Used by tests.
func WithRESTBaseURL(base string) HangupOption {
	return func(c *HangupClient) {
		c.baseURL = strings.TrimSuffix(base, "/")
	}
}

// WithRESTHTTPClient overrides the HTTP client.
func WithRESTHTTPClient(hc *http.Client) HangupOption {
	return func(c *HangupClient) {
		c.httpClient = hc
	}
}

// NewHangupClient creates a client authenticated with the given account
// credentials.
func NewHangupClient(accountSID, authToken string, opts ...HangupOption) (*HangupClient, error) {
	if accountSID == "" || authToken == "" {
		return nil, errors.New("telephony: account SID and auth token must not be empty")
	}
	c := &HangupClient{
		accountSID: accountSID,
		authToken:  authToken,
		baseURL:    defaultRESTBaseURL,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Hangup transitions the call to status "completed", disconnecting the caller.
func (c *HangupClient) Hangup(ctx context.Context, callID string) error {
	if callID == "" {
		return errors.New("telephony: callID must not be empty")
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json",
		c.baseURL, url.PathEscape(c.accountSID), url.PathEscape(callID))

	form := url.Values{}
	form.Set("Status", "completed")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("telephony: hangup request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telephony: hangup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("telephony: hangup: unexpected status %d", resp.StatusCode)
	}
	return nil
}
