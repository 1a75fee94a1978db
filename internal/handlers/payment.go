package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/markjakearzadon/chargepay-gobackend.git/internal/gateway"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/models"
	"github.com/markjakearzadon/chargepay-gobackend.git/internal/services"
)

const maxWebhookBody = 1 << 20

type PaymentHandler struct {
	service *services.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(service *services.PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

type createOrderRequest struct {
	Amount        decimal.Decimal      `json:"amount"`
	Kind          models.OrderKind     `json:"kind"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
	SessionID     string               `json:"session_id"`
	Description   string               `json:"description"`
}

func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := userIDFrom(r.Context())
	result, err := h.service.CreateOrder(r.Context(), services.CreateOrderRequest{
		UserID:        userID,
		Amount:        req.Amount,
		Kind:          req.Kind,
		PaymentMethod: req.PaymentMethod,
		SessionID:     req.SessionID,
		Description:   req.Description,
	})
	if err != nil {
		h.fail(w, "create order", err, zap.String("user_id", userID))
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *PaymentHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.service.ListOrders(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		h.fail(w, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *PaymentHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]
	order, err := h.service.GetOrder(r.Context(), orderID, userIDFrom(r.Context()))
	if err != nil {
		h.fail(w, "get order", err, zap.String("order_id", orderID))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *PaymentHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "cancelled by user"
	}

	orderID := mux.Vars(r)["orderID"]
	order, err := h.service.CancelOrder(r.Context(), orderID, userIDFrom(r.Context()), body.Reason)
	if err != nil {
		h.fail(w, "cancel order", err, zap.String("order_id", orderID))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *PaymentHandler) SyncOrder(w http.ResponseWriter, r *http.Request) {
	orderID := mux.Vars(r)["orderID"]
	order, err := h.service.SyncOrder(r.Context(), orderID, userIDFrom(r.Context()))
	if err != nil {
		h.fail(w, "sync order", err, zap.String("order_id", orderID))
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// Webhook answers 200 only when the notification was accepted. Any other
// status makes the gateway deliver it again.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	n, err := gateway.ParseNotification(body, r.Header)
	if err != nil {
		h.logger.Warn("unparseable gateway notification", zap.Error(err))
		writeError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if !h.service.HandleGatewayNotification(r.Context(), n) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *PaymentHandler) fail(w http.ResponseWriter, op string, err error, fields ...zap.Field) {
	status, msg := statusFor(err)
	fields = append(fields, zap.Error(err), zap.Int("status", status))
	if status >= http.StatusInternalServerError {
		h.logger.Error("failed to "+op, fields...)
	} else {
		h.logger.Info(op+" rejected", fields...)
	}
	writeError(w, status, msg)
}
