package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"hotspot-billing.com/platform/internal/audit"
	"hotspot-billing.com/platform/internal/middleware"
	"hotspot-billing.com/platform/internal/vouchers"
	"hotspot-billing.com/platform/pkg/metrics"
)

const (
	voucherEndpoint = "/api/vouchers"
	maxBodyBytes    = 1 << 20
)

const (
	CodeMissingHeader     = "missing_or_invalid_header"
	CodeInvalidOrInactive = "invalid_or_inactive"
)

// batchCall carries what the audit entry for one ingestion request needs.
type batchCall struct {
	resellerID int
	body       string
	responded  bool
}

// CreateVoucherBatch handles POST /vouchers. Request-level problems reject
// the whole batch; once the router is known every item is processed and the
// response is 200.
func (h *Handler) CreateVoucherBatch(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	call := &batchCall{}
	defer func() {
		rec := recover()
		if rec == nil {
			return
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
		h.logger.Error("Voucher batch panicked", "panic", rec, "reseller_id", call.resellerID,
			"request_id", middleware.GetRequestID(r.Context()))
		if !call.responded {
			h.sendBatchJSON(w, r, call, http.StatusInternalServerError, Response{Success: false, Message: "Internal server error"})
		}
	}()

	// Every audit row carries the raw body, including rejected calls.
	raw, readErr := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	call.body = string(raw)

	if r.Method != http.MethodPost {
		h.sendBatchJSON(w, r, call, http.StatusMethodNotAllowed, Response{Success: false, Message: "Method not allowed. Use POST."})
		return
	}

	apiKey, err := middleware.ExtractBearerToken(r.Header.Get("Authorization"))
	if err != nil {
		h.sendBatchJSON(w, r, call, http.StatusUnauthorized, Response{
			Success: false,
			Message: "Missing or invalid Authorization header. Use: Authorization: Bearer YOUR_API_KEY",
			Code:    CodeMissingHeader,
		})
		return
	}

	reseller, err := h.vouchers.AuthenticateAPIKey(r.Context(), apiKey)
	if errors.Is(err, vouchers.ErrInvalidAPIKey) {
		h.sendBatchJSON(w, r, call, http.StatusUnauthorized, Response{
			Success: false,
			Message: "Invalid API key or inactive account",
			Code:    CodeInvalidOrInactive,
		})
		return
	}
	if err != nil {
		h.internalError(w, r, call, err)
		return
	}
	call.resellerID = reseller.ID

	if readErr != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(readErr, &tooLarge) {
			h.sendBatchJSON(w, r, call, http.StatusRequestEntityTooLarge, Response{Success: false, Message: "Request body too large"})
			return
		}
		h.sendBatchJSON(w, r, call, http.StatusBadRequest, Response{Success: false, Message: "Invalid JSON in request body"})
		return
	}

	if !json.Valid(raw) {
		h.sendBatchJSON(w, r, call, http.StatusBadRequest, Response{Success: false, Message: "Invalid JSON in request body"})
		return
	}

	var body map[string]json.RawMessage
	_ = json.Unmarshal(raw, &body)
	routerRaw, hasRouter := presentField(body, "router_id")
	itemsRaw, hasItems := presentField(body, "vouchers")
	if !hasRouter || !hasItems {
		h.sendBatchJSON(w, r, call, http.StatusBadRequest, Response{Success: false, Message: "Missing required fields: router_id and vouchers"})
		return
	}

	var routerName string
	if err := json.Unmarshal(routerRaw, &routerName); err != nil {
		h.sendBatchJSON(w, r, call, http.StatusBadRequest, Response{Success: false, Message: "router_id must be a string"})
		return
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(itemsRaw, &rawItems); err != nil {
		h.sendBatchJSON(w, r, call, http.StatusBadRequest, Response{Success: false, Message: "vouchers must be an array"})
		return
	}

	if len(rawItems) > h.maxBatchSize {
		h.sendBatchJSON(w, r, call, http.StatusRequestEntityTooLarge, Response{
			Success: false,
			Message: fmt.Sprintf("Max %d vouchers per request", h.maxBatchSize),
		})
		return
	}

	router, err := h.vouchers.ValidateRouter(r.Context(), reseller.ID, routerName)
	if errors.Is(err, vouchers.ErrRouterNotFound) {
		h.sendBatchJSON(w, r, call, http.StatusForbidden, Response{
			Success: false,
			Message: fmt.Sprintf(`Router "%s" not found or does not belong to your account`, routerName),
		})
		return
	}
	if err != nil {
		h.internalError(w, r, call, err)
		return
	}

	items := make([]vouchers.BatchItem, 0, len(rawItems))
	for _, item := range rawItems {
		items = append(items, vouchers.DecodeItem(item))
	}

	summary := h.vouchers.ProcessBatch(r.Context(), reseller, router, items)
	metrics.BatchSize.Observe(float64(summary.Total))

	h.logger.Info("Voucher batch processed",
		"reseller_id", reseller.ID,
		"router", router.Name,
		"total", summary.Total,
		"stored", summary.Stored,
		"failed", summary.Failed,
		"request_id", middleware.GetRequestID(r.Context()),
	)

	h.sendBatchJSON(w, r, call, http.StatusOK, Response{
		Success: true,
		Message: "Batch processed",
		Data:    summary,
	})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, call *batchCall, err error) {
	h.logger.Error("Voucher batch failed", "error", err, "reseller_id", call.resellerID,
		"request_id", middleware.GetRequestID(r.Context()))
	h.sendBatchJSON(w, r, call, http.StatusInternalServerError, Response{Success: false, Message: "Internal server error"})
}

// sendBatchJSON writes the response and hands a copy to the audit sink.
func (h *Handler) sendBatchJSON(w http.ResponseWriter, r *http.Request, call *batchCall, status int, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"success":false,"message":"Internal server error"}`)
	}

	call.responded = true
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)

	metrics.BatchRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	h.record(r, voucherEndpoint, call.resellerID, call.body, string(payload), status)
}

func (h *Handler) record(r *http.Request, endpoint string, resellerID int, requestBody, responseBody string, status int) {
	if h.audit == nil {
		return
	}
	h.audit.Record(audit.Entry{
		ResellerID:   resellerID,
		Endpoint:     endpoint,
		Method:       r.Method,
		RequestBody:  requestBody,
		ResponseBody: responseBody,
		StatusCode:   status,
		IPAddress:    middleware.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

// presentField treats a JSON null the same as an absent key.
func presentField(body map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := body[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}
