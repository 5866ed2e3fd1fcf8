package lulu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"snaptale/pkg/domain"
)

// Pod package IDs for the supported print formats.
const (
	PodPackageHardcoverSquare = "0850X0850FCPRECW080CW444MXX"
	PodPackageSoftcoverSquare = "0850X0850FCPRESS080CW444MXX"
)

// Client calls the print vendor's REST API using OAuth2
// client-credentials tokens.
type Client struct {
	baseURL      string
	clientKey    string
	clientSecret string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpire time.Time
}

// APIError represents a vendor error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lulu: status %d: %s", e.Status, e.Message)
}

// NewClient constructs a print-vendor client.
func NewClient(baseURL, clientKey, clientSecret string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		clientKey:    clientKey,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// CreatePrintJobInput carries everything the vendor needs to print one book.
type CreatePrintJobInput struct {
	OrderID       string
	Title         string
	PodPackageID  string
	PageCount     int
	InteriorURL   string
	CoverURL      string
	ContactEmail  string
	Shipping      domain.ShippingAddress
	ShippingLevel string
}

// PrintJob is the vendor's view of a submitted job.
type PrintJob struct {
	ID     string
	Status string
}

type printJobResponse struct {
	ID     json.Number `json:"id"`
	Status struct {
		Name string `json:"name"`
	} `json:"status"`
}

// CreatePrintJob submits a print job and returns the vendor job ID.
func (c *Client) CreatePrintJob(ctx context.Context, in CreatePrintJobInput) (PrintJob, error) {
	if in.InteriorURL == "" || in.CoverURL == "" {
		return PrintJob{}, fmt.Errorf("lulu: interior and cover URLs are required")
	}
	shippingLevel := in.ShippingLevel
	if shippingLevel == "" {
		shippingLevel = "MAIL"
	}
	payload := map[string]any{
		"external_id":    in.OrderID,
		"contact_email":  in.ContactEmail,
		"shipping_level": shippingLevel,
		"shipping_address": map[string]any{
			"name":         in.Shipping.Name,
			"street1":      in.Shipping.Street1,
			"street2":      in.Shipping.Street2,
			"city":         in.Shipping.City,
			"state_code":   in.Shipping.State,
			"postcode":     in.Shipping.PostalCode,
			"country_code": in.Shipping.Country,
			"phone_number": in.Shipping.Phone,
		},
		"line_items": []map[string]any{
			{
				"title":          in.Title,
				"quantity":       1,
				"pod_package_id": in.PodPackageID,
				"page_count":     in.PageCount,
				"interior": map[string]any{
					"source_url": in.InteriorURL,
				},
				"cover": map[string]any{
					"source_url": in.CoverURL,
				},
			},
		},
	}

	var resp printJobResponse
	if err := c.doJSON(ctx, http.MethodPost, "/print-jobs/", payload, &resp); err != nil {
		return PrintJob{}, err
	}
	if resp.ID.String() == "" {
		return PrintJob{}, fmt.Errorf("lulu: create print job returned no id")
	}
	return PrintJob{ID: resp.ID.String(), Status: resp.Status.Name}, nil
}

// GetPrintJob fetches the current vendor status of a job.
func (c *Client) GetPrintJob(ctx context.Context, jobID string) (PrintJob, error) {
	var resp printJobResponse
	if err := c.doJSON(ctx, http.MethodGet, "/print-jobs/"+url.PathEscape(jobID)+"/", nil, &resp); err != nil {
		return PrintJob{}, err
	}
	return PrintJob{ID: resp.ID.String(), Status: resp.Status.Name}, nil
}

// OrderStatusFor maps a vendor job status to the order lifecycle status
// it implies. The bool is false for vendor states that carry no
// lifecycle progress (e.g. still validating files).
func OrderStatusFor(vendorStatus string) (domain.OrderStatus, bool) {
	switch strings.ToUpper(strings.TrimSpace(vendorStatus)) {
	case "CREATED", "UNPAID", "PAYMENT_IN_PROGRESS", "PRODUCTION_DELAYED":
		return domain.OrderSubmitted, true
	case "PRODUCTION_READY", "IN_PRODUCTION":
		return domain.OrderInProduction, true
	case "SHIPPED":
		return domain.OrderShipped, true
	case "DELIVERED":
		return domain.OrderDelivered, true
	case "REJECTED", "CANCELED", "CANCELLED":
		return domain.OrderFailed, true
	default:
		return "", false
	}
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("lulu: encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("lulu: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("lulu: decode response: %w", err)
	}
	return nil
}

// token returns a cached access token, refreshing via the OAuth2
// client-credentials grant when it is missing or about to expire.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpire) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/auth/realms/glasstree/protocol/openid-connect/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientKey, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("lulu: fetch token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("lulu: decode token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("lulu: token response missing access_token")
	}

	ttl := time.Duration(payload.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	c.accessToken = payload.AccessToken
	// Refresh a little early so in-flight requests never carry an
	// expired token.
	c.tokenExpire = time.Now().Add(ttl - 30*time.Second)
	return c.accessToken, nil
}
