package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"snaptale/internal/app"
	"snaptale/internal/lulu"
	"snaptale/pkg/ai"
	"snaptale/pkg/auth"
	"snaptale/pkg/domain"
	"snaptale/pkg/queue"
	"snaptale/pkg/store"
)

const webhookSecret = "whsec_test_secret"

// ---- fakes ----

type fakeObjects struct {
	data map[string][]byte
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.data[key] = b
	return nil
}

func (f *fakeObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type fakeQueue struct {
	refs []string
}

func (f *fakeQueue) Enqueue(_ context.Context, refID string) (queue.JobStatus, error) {
	f.refs = append(f.refs, refID)
	return queue.JobStatus{ID: fmt.Sprintf("job-%d", len(f.refs)), RefID: refID}, nil
}

type fakeVendor struct {
	createErr error
	created   int
}

func (f *fakeVendor) CreatePrintJob(_ context.Context, _ lulu.CreatePrintJobInput) (lulu.PrintJob, error) {
	if f.createErr != nil {
		return lulu.PrintJob{}, f.createErr
	}
	f.created++
	return lulu.PrintJob{ID: "pj-1", Status: "CREATED"}, nil
}

func (f *fakeVendor) GetPrintJob(_ context.Context, jobID string) (lulu.PrintJob, error) {
	return lulu.PrintJob{ID: jobID, Status: "CREATED"}, nil
}

type fakePayments struct{}

func (fakePayments) CreateCheckoutSession(_ context.Context, in app.CheckoutInput) (app.CheckoutSession, error) {
	return app.CheckoutSession{ID: "cs_" + in.OrderID, URL: "https://checkout.test/" + in.OrderID}, nil
}

type fakeTransformer struct{}

func (fakeTransformer) Transform(_ context.Context, _ ai.TransformRequest) (ai.TransformResult, error) {
	return ai.TransformResult{Image: []byte("stylized"), ContentType: "image/png"}, nil
}

type fakeGenerator struct {
	err error
}

func (f *fakeGenerator) GenerateText(_ context.Context, _, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "A bright blue morning by the sea.", nil
}

type fakeLimiter struct {
	allow bool
}

func (f *fakeLimiter) Allow(string) bool { return f.allow }

// ---- fixture ----

type fixture struct {
	t       *testing.T
	srv     *httptest.Server
	app     *app.App
	store   *store.MemoryStore
	vendor  *fakeVendor
	orders  *fakeQueue
	story   *fakeLimiter
	gen     *fakeGenerator
	tokens  *auth.TokenIssuer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	memStore := store.NewMemoryStore()
	vendor := &fakeVendor{}
	orders := &fakeQueue{}
	gen := &fakeGenerator{}
	a, err := app.New(app.Config{
		Store:          memStore,
		Objects:        &fakeObjects{data: map[string][]byte{}},
		OrderQueue:     orders,
		TransformQueue: &fakeQueue{},
		Transformer:    fakeTransformer{},
		Generator:      gen,
		Vendor:         vendor,
		Payments:       fakePayments{},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}

	tokens, err := auth.NewTokenIssuer("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("new token issuer: %v", err)
	}
	story := &fakeLimiter{allow: true}
	srv, err := New(Config{
		App:           a,
		Tokens:        tokens,
		InternalToken: "internal-test-token",
		StripeWebhook: NewStripeWebhook(a, webhookSecret),
		StoryLimiter:  story,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return &fixture{
		t:      t,
		srv:    ts,
		app:    a,
		store:  memStore,
		vendor: vendor,
		orders: orders,
		story:  story,
		gen:    gen,
		tokens: tokens,
	}
}

func (f *fixture) do(method, path, token string, body any) (*http.Response, []byte) {
	f.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	if err != nil {
		f.t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		f.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		f.t.Fatalf("read response: %v", err)
	}
	return resp, data
}

func (f *fixture) signup(email string) (domain.User, string) {
	f.t.Helper()
	resp, body := f.do(http.MethodPost, "/auth/signup", "", map[string]string{
		"email":    email,
		"password": "password123",
	})
	if resp.StatusCode != http.StatusCreated {
		f.t.Fatalf("signup status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string      `json:"token"`
		User  domain.User `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		f.t.Fatalf("decode signup response: %v", err)
	}
	return out.User, out.Token
}

func (f *fixture) readyBookOrder(user domain.User, token string) (domain.Book, domain.PrintOrder) {
	f.t.Helper()
	book, err := f.app.CreateBook(user, app.CreateBookInput{Title: "Trip", PageCount: 2})
	if err != nil {
		f.t.Fatalf("create book: %v", err)
	}
	book.Status = domain.BookReadyToPrint
	if err := f.store.SaveBook(book); err != nil {
		f.t.Fatalf("save book: %v", err)
	}

	resp, body := f.do(http.MethodPost, "/api/orders", token, map[string]any{
		"bookId":       book.ID,
		"contactEmail": user.Email,
		"shipping": map[string]string{
			"name":       "Buyer",
			"street1":    "1 Main St",
			"city":       "Springfield",
			"postalCode": "12345",
			"country":    "US",
		},
	})
	if resp.StatusCode != http.StatusCreated {
		f.t.Fatalf("create order status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Order domain.PrintOrder `json:"order"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		f.t.Fatalf("decode order: %v", err)
	}
	// The checkout session ID is not serialized; reload for webhook tests.
	stored, ok, err := f.store.GetOrder(out.Order.ID)
	if err != nil || !ok {
		f.t.Fatalf("reload order: ok=%v err=%v", ok, err)
	}
	return book, stored
}

// signStripePayload produces a Stripe-Signature header for the payload.
func signStripePayload(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	return fmt.Sprintf("t=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func checkoutCompletedEvent(sessionID, orderID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {"id": %q, "client_reference_id": %q}}
	}`, sessionID, orderID))
}

// ---- auth ----

func TestAuthenticatedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/books"},
		{http.MethodGet, "/api/orders"},
		{http.MethodPost, "/api/orders/process"},
		{http.MethodPost, "/api/story-suggest"},
		{http.MethodGet, "/auth/me"},
	}
	for _, tc := range paths {
		resp, body := f.do(tc.method, tc.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s %s without token: status = %d, want 401 (%s)", tc.method, tc.path, resp.StatusCode, body)
		}
		var errBody struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(body, &errBody); err != nil || errBody.Code != "AUTH_INVALID_TOKEN" {
			t.Fatalf("%s %s error code = %q", tc.method, tc.path, errBody.Code)
		}
	}

	// A garbage token is also refused.
	resp, _ := f.do(http.MethodGet, "/api/books", "not-a-jwt", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("garbage token: status = %d, want 401", resp.StatusCode)
	}
}

func TestSignupLoginMe(t *testing.T) {
	f := newFixture(t)
	user, _ := f.signup("me@example.com")

	resp, body := f.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "me@example.com",
		"password": "password123",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		t.Fatalf("login response: %s", body)
	}

	resp, body = f.do(http.MethodGet, "/auth/me", out.Token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me status = %d", resp.StatusCode)
	}
	var got domain.User
	if err := json.Unmarshal(body, &got); err != nil || got.ID != user.ID {
		t.Fatalf("me returned %s", body)
	}
	if strings.Contains(string(body), "passwordHash") {
		t.Fatal("password hash leaked in response")
	}
}

func TestLoginBadPassword(t *testing.T) {
	f := newFixture(t)
	f.signup("who@example.com")
	resp, _ := f.do(http.MethodPost, "/auth/login", "", map[string]string{
		"email":    "who@example.com",
		"password": "wrong-password",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

// ---- books ----

func TestCreateBookAndListPages(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup("books@example.com")

	resp, body := f.do(http.MethodPost, "/api/books", token, map[string]any{
		"title":     "Alps Adventure",
		"pageCount": 6,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create book status = %d: %s", resp.StatusCode, body)
	}
	var book domain.Book
	if err := json.Unmarshal(body, &book); err != nil {
		t.Fatalf("decode book: %v", err)
	}

	resp, body = f.do(http.MethodGet, "/api/books/"+book.ID+"/pages", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list pages status = %d", resp.StatusCode)
	}
	var pages struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &pages); err != nil || pages.Count != 6 {
		t.Fatalf("pages response: %s", body)
	}
}

func TestCreateBookValidation(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup("bad@example.com")
	resp, _ := f.do(http.MethodPost, "/api/books", token, map[string]any{
		"title":     "",
		"pageCount": 6,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCrossUserBookAccessForbidden(t *testing.T) {
	f := newFixture(t)
	f.signup("admin@example.com") // burn the admin slot
	owner, ownerToken := f.signup("owner@example.com")
	_, strangerToken := f.signup("stranger@example.com")

	book, err := f.app.CreateBook(owner, app.CreateBookInput{Title: "Mine", PageCount: 4})
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	resp, _ := f.do(http.MethodGet, "/api/books/"+book.ID, ownerToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner get status = %d", resp.StatusCode)
	}
	resp, body := f.do(http.MethodPatch, "/api/books/"+book.ID, strangerToken, map[string]string{"title": "Stolen"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stranger patch status = %d: %s", resp.StatusCode, body)
	}
}

// ---- orders/process contract ----

func TestProcessOrderMissingOrderID(t *testing.T) {
	f := newFixture(t)
	user, token := f.signup("proc@example.com")
	_, order := f.readyBookOrder(user, token)

	resp, body := f.do(http.MethodPost, "/api/orders/process", token, map[string]string{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (%s)", resp.StatusCode, body)
	}
	// The store must be untouched.
	got, _, _ := f.store.GetOrder(order.ID)
	if got.Status != domain.OrderPendingPayment {
		t.Fatalf("order status = %s, want pending_payment untouched", got.Status)
	}
}

func TestProcessOrderSuccessAndFailureBodies(t *testing.T) {
	f := newFixture(t)
	user, token := f.signup("proc2@example.com")
	_, order := f.readyBookOrder(user, token)

	// Pay via webhook so the order is processable.
	payload := checkoutCompletedEvent(order.StripeSessionID, order.ID)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload, webhookSecret))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("webhook status = %d", resp.StatusCode)
	}

	httpResp, body := f.do(http.MethodPost, "/api/orders/process", token, map[string]string{"orderId": order.ID})
	if httpResp.StatusCode != http.StatusOK {
		t.Fatalf("process status = %d: %s", httpResp.StatusCode, body)
	}
	var ok processResponse
	if err := json.Unmarshal(body, &ok); err != nil || !ok.Success {
		t.Fatalf("process body: %s", body)
	}
	got, _, _ := f.store.GetOrder(order.ID)
	if got.Status != domain.OrderSubmitted {
		t.Fatalf("order status = %s, want submitted", got.Status)
	}

	// A second order whose vendor submission fails must yield 500 with
	// a structured failure body.
	f.vendor.createErr = fmt.Errorf("vendor rejected files")
	_, order2 := f.readyBookOrder(user, token)
	payload = checkoutCompletedEvent(order2.StripeSessionID, order2.ID)
	req, _ = http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload, webhookSecret))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()

	httpResp, body = f.do(http.MethodPost, "/api/orders/process", token, map[string]string{"orderId": order2.ID})
	if httpResp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("failed process status = %d: %s", httpResp.StatusCode, body)
	}
	var failed processResponse
	if err := json.Unmarshal(body, &failed); err != nil || failed.Success || failed.Error == "" {
		t.Fatalf("failure body: %s", body)
	}
	got, _, _ = f.store.GetOrder(order2.ID)
	if got.Status != domain.OrderFailed || got.LastError == "" {
		t.Fatalf("order2 = %+v, want failed with LastError", got)
	}
}

func TestInternalProcessOrderTokenGuard(t *testing.T) {
	f := newFixture(t)
	user, token := f.signup("internal@example.com")
	_, order := f.readyBookOrder(user, token)

	body, _ := json.Marshal(map[string]string{"orderId": order.ID})
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/internal/orders/process", bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing internal token: status = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodPost, f.srv.URL+"/internal/orders/process", bytes.NewReader(body))
	req.Header.Set("X-Internal-Token", "internal-test-token")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	// The order is unpaid, so processing fails, but the guard passed.
	if resp.StatusCode == http.StatusUnauthorized {
		t.Fatal("valid internal token refused")
	}
}

// ---- stripe webhook ----

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	user, token := f.signup("hook@example.com")
	_, order := f.readyBookOrder(user, token)

	payload := checkoutCompletedEvent(order.StripeSessionID, order.ID)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload, "whsec_wrong_secret"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	got, _, _ := f.store.GetOrder(order.ID)
	if got.Status != domain.OrderPendingPayment {
		t.Fatalf("order mutated by unsigned webhook: %s", got.Status)
	}
	if len(f.orders.refs) != 0 {
		t.Fatal("job enqueued despite invalid signature")
	}
}

func TestStripeWebhookAcknowledgesUnknownEvents(t *testing.T) {
	f := newFixture(t)
	payload := []byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{}}}`)
	req, _ := http.NewRequest(http.MethodPost, f.srv.URL+"/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(payload, webhookSecret))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

// ---- story suggest ----

func TestStorySuggest(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup("story@example.com")

	resp, body := f.do(http.MethodPost, "/api/story-suggest", token, map[string]any{
		"bookTitle":  "Beach Week",
		"pageNumber": 1,
		"totalPages": 10,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Suggestion string `json:"suggestion"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Suggestion == "" {
		t.Fatalf("body: %s", body)
	}

	// Missing pageNumber → 400.
	resp, _ = f.do(http.MethodPost, "/api/story-suggest", token, map[string]any{
		"bookTitle":  "Beach Week",
		"totalPages": 10,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing pageNumber status = %d, want 400", resp.StatusCode)
	}

	// Provider failure → 500 with structured body.
	f.gen.err = fmt.Errorf("provider down")
	resp, body = f.do(http.MethodPost, "/api/story-suggest", token, map[string]any{
		"bookTitle":  "Beach Week",
		"pageNumber": 1,
		"totalPages": 10,
	})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("provider failure status = %d", resp.StatusCode)
	}
	var errBody struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(body, &errBody); err != nil || errBody.Code == "" {
		t.Fatalf("error body: %s", body)
	}
}

func TestStorySuggestRateLimited(t *testing.T) {
	f := newFixture(t)
	_, token := f.signup("limited@example.com")
	f.story.allow = false

	resp, body := f.do(http.MethodPost, "/api/story-suggest", token, map[string]any{
		"bookTitle":  "Beach Week",
		"pageNumber": 1,
		"totalPages": 10,
	})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 (%s)", resp.StatusCode, body)
	}
}
