package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"snaptale/internal/app"
	"snaptale/pkg/domain"
)

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateOrder(w, r, user)
	case http.MethodGet:
		orders, err := s.app.ListOrders(user)
		if err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": orders,
			"count": len(orders),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req struct {
		BookID       string                 `json:"bookId"`
		ContactEmail string                 `json:"contactEmail"`
		Shipping     domain.ShippingAddress `json:"shipping"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.app.CreateOrder(r.Context(), user, app.CreateOrderInput{
		BookID:       req.BookID,
		ContactEmail: req.ContactEmail,
		Shipping:     req.Shipping,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// /api/orders/{id}
func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	id := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	order, err := s.app.GetOrder(user, id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

type processResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// handleProcessOrder is the authenticated manual-retry hook. It verifies
// ownership before touching the order.
func (s *Server) handleProcessOrder(w http.ResponseWriter, r *http.Request, user domain.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	orderID, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}
	if _, err := s.app.GetOrder(user, orderID); err != nil {
		writeAppError(w, err)
		return
	}
	s.runProcessOrder(w, r.Context(), orderID)
}

// handleInternalProcessOrder is the service-to-service variant, guarded
// by the internal token instead of a user session.
func (s *Server) handleInternalProcessOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	orderID, ok := decodeProcessRequest(w, r)
	if !ok {
		return
	}
	s.runProcessOrder(w, r.Context(), orderID)
}

func decodeProcessRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		OrderID string `json:"orderId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	orderID := strings.TrimSpace(req.OrderID)
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "orderId is required")
		return "", false
	}
	return orderID, true
}

func (s *Server) runProcessOrder(w http.ResponseWriter, ctx context.Context, orderID string) {
	if err := s.app.ProcessOrder(ctx, orderID); err != nil {
		if errors.Is(err, app.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		writeJSON(w, http.StatusInternalServerError, processResponse{
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, processResponse{
		Success: true,
		Message: "order processed",
	})
}
