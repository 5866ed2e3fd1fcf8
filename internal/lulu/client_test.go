package lulu

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"snaptale/pkg/domain"
)

func newVendorServer(t *testing.T, tokenCalls *int32, jobStatus string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/realms/glasstree/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "key" || pass != "secret" {
			http.Error(w, "bad credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/print-jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost {
			var payload struct {
				ExternalID string `json:"external_id"`
				LineItems  []struct {
					PodPackageID string `json:"pod_package_id"`
					PageCount    int    `json:"page_count"`
				} `json:"line_items"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if payload.ExternalID == "" || len(payload.LineItems) != 1 {
				http.Error(w, "bad payload", http.StatusBadRequest)
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id": 4242, "status": {"name": "CREATED"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"id": 4242, "status": {"name": "` + jobStatus + `"}}`))
	})
	return httptest.NewServer(mux)
}

func TestCreateAndGetPrintJob(t *testing.T) {
	var tokenCalls int32
	srv := newVendorServer(t, &tokenCalls, "IN_PRODUCTION")
	defer srv.Close()

	c := NewClient(srv.URL, "key", "secret")
	job, err := c.CreatePrintJob(context.Background(), CreatePrintJobInput{
		OrderID:      "order-1",
		Title:        "Our Trip",
		PodPackageID: PodPackageHardcoverSquare,
		PageCount:    12,
		InteriorURL:  "https://files.example.com/interior.pdf",
		CoverURL:     "https://files.example.com/cover.pdf",
		ContactEmail: "buyer@example.com",
		Shipping: domain.ShippingAddress{
			Name:       "Buyer",
			Street1:    "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
	})
	if err != nil {
		t.Fatalf("create print job: %v", err)
	}
	if job.ID != "4242" || job.Status != "CREATED" {
		t.Fatalf("unexpected job: %+v", job)
	}

	got, err := c.GetPrintJob(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("get print job: %v", err)
	}
	if got.Status != "IN_PRODUCTION" {
		t.Fatalf("status = %q, want IN_PRODUCTION", got.Status)
	}
	if atomic.LoadInt32(&tokenCalls) != 1 {
		t.Fatalf("token calls = %d, want 1 (cached)", tokenCalls)
	}
}

func TestCreatePrintJobRequiresFileURLs(t *testing.T) {
	c := NewClient("http://localhost:0", "key", "secret")
	if _, err := c.CreatePrintJob(context.Background(), CreatePrintJobInput{OrderID: "o"}); err == nil {
		t.Fatal("expected missing file URLs to fail")
	}
}

func TestOrderStatusFor(t *testing.T) {
	tests := []struct {
		vendor string
		want   domain.OrderStatus
		ok     bool
	}{
		{"CREATED", domain.OrderSubmitted, true},
		{"in_production", domain.OrderInProduction, true},
		{"SHIPPED", domain.OrderShipped, true},
		{"DELIVERED", domain.OrderDelivered, true},
		{"REJECTED", domain.OrderFailed, true},
		{"SOMETHING_ELSE", "", false},
	}
	for _, tc := range tests {
		got, ok := OrderStatusFor(tc.vendor)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("OrderStatusFor(%q) = (%q, %v), want (%q, %v)", tc.vendor, got, ok, tc.want, tc.ok)
		}
	}
}
