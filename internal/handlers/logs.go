package handlers

import (
	"net/http"
	"strconv"

	"hotspot-billing.com/platform/internal/middleware"
	"hotspot-billing.com/platform/internal/models"
)

type logFilter struct {
	Limit int `validate:"min=1,max=500"`
}

// GetAPILogs lists the caller's own API calls, newest first.
func (h *Handler) GetAPILogs(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetResellerFromContext(r)
	if claims == nil {
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Unauthorized access"})
		return
	}

	filter := logFilter{Limit: 100}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "limit must be a number"})
			return
		}
		filter.Limit = n
	}
	if err := h.validate.Struct(filter); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "limit must be between 1 and 500"})
		return
	}

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, endpoint, method, COALESCE(request_data, ''), COALESCE(response_data, ''),
		       status_code, COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM api_logs
		WHERE reseller_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, claims.ResellerID, filter.Limit)
	if err != nil {
		h.logger.Error("Failed to list api logs", "error", err, "reseller_id", claims.ResellerID)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}
	defer rows.Close()

	logs := []models.APILog{}
	for rows.Next() {
		var l models.APILog
		if err := rows.Scan(&l.ID, &l.Endpoint, &l.Method, &l.RequestData, &l.ResponseData,
			&l.StatusCode, &l.IPAddress, &l.UserAgent, &l.CreatedAt); err != nil {
			h.logger.Error("Failed to scan api log", "error", err)
			h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
			return
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{Success: true, Data: logs})
}
