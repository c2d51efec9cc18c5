package handlers

import (
	"net/http"
	"strconv"

	"hotspot-billing.com/platform/internal/middleware"
	"hotspot-billing.com/platform/internal/models"
)

type voucherFilter struct {
	RouterID  int    `validate:"gte=0"`
	PackageID int    `validate:"gte=0"`
	Status    string `validate:"omitempty,oneof=active used expired disabled"`
	Limit     int    `validate:"min=1,max=500"`
	Offset    int    `validate:"gte=0"`
}

func (h *Handler) GetVouchers(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetResellerFromContext(r)
	if claims == nil {
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Unauthorized access"})
		return
	}

	q := r.URL.Query()
	filter := voucherFilter{Status: q.Get("status"), Limit: 100}
	for key, dst := range map[string]*int{
		"router_id":  &filter.RouterID,
		"package_id": &filter.PackageID,
		"limit":      &filter.Limit,
		"offset":     &filter.Offset,
	} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: key + " must be a number"})
			return
		}
		*dst = n
	}

	if err := h.validate.Struct(filter); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid filter: " + err.Error()})
		return
	}

	query := `
		SELECT v.id, v.code, v.username, v.package_id, COALESCE(p.name, ''), v.reseller_id, v.router_id,
		       v.profile, v.validity, v.comment, v.metadata, v.api_created, v.status, v.created_at
		FROM vouchers v
		LEFT JOIN packages p ON p.id = v.package_id
		WHERE v.reseller_id = $1`
	args := []interface{}{claims.ResellerID}
	argCount := 1

	if filter.RouterID > 0 {
		argCount++
		query += " AND v.router_id = $" + strconv.Itoa(argCount)
		args = append(args, filter.RouterID)
	}
	if filter.PackageID > 0 {
		argCount++
		query += " AND v.package_id = $" + strconv.Itoa(argCount)
		args = append(args, filter.PackageID)
	}
	if filter.Status != "" {
		argCount++
		query += " AND v.status = $" + strconv.Itoa(argCount)
		args = append(args, filter.Status)
	}

	query += " ORDER BY v.created_at DESC, v.id DESC LIMIT $" + strconv.Itoa(argCount+1) + " OFFSET $" + strconv.Itoa(argCount+2)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		h.logger.Error("Failed to list vouchers", "error", err, "reseller_id", claims.ResellerID)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}
	defer rows.Close()

	list := []models.Voucher{}
	for rows.Next() {
		var v models.Voucher
		var metadata []byte
		if err := rows.Scan(&v.ID, &v.Code, &v.Username, &v.PackageID, &v.PackageName, &v.ResellerID, &v.RouterID,
			&v.Profile, &v.Validity, &v.Comment, &metadata, &v.APICreated, &v.Status, &v.CreatedAt); err != nil {
			h.logger.Error("Failed to scan voucher", "error", err)
			h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
			return
		}
		v.Metadata = metadata
		list = append(list, v)
	}
	if err := rows.Err(); err != nil {
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Data: map[string]interface{}{
			"vouchers": list,
			"count":    len(list),
			"limit":    filter.Limit,
			"offset":   filter.Offset,
		},
	})
}
