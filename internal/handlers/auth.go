package handlers

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"hotspot-billing.com/platform/internal/middleware"
	"hotspot-billing.com/platform/internal/models"
)

const (
	apiKeyPrefix   = "qtro_"
	apiKeyEndpoint = "/api/generate_api_key"
)

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "Invalid request body"})
		return
	}

	if err := h.validate.Struct(req); err != nil {
		h.sendJSON(w, http.StatusBadRequest, Response{Success: false, Error: "A valid email and password are required"})
		return
	}

	var reseller models.Reseller
	err := h.db.QueryRowContext(r.Context(),
		"SELECT id, business_name, email, password_hash, status FROM resellers WHERE email = $1",
		req.Email,
	).Scan(&reseller.ID, &reseller.BusinessName, &reseller.Email, &reseller.PasswordHash, &reseller.Status)

	if errors.Is(err, sql.ErrNoRows) {
		h.logger.Warn("Login failed - reseller not found", "email", req.Email)
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid credentials"})
		return
	}
	if err != nil {
		h.logger.Error("Login query failed", "error", err)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Database error"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(reseller.PasswordHash), []byte(req.Password)); err != nil {
		h.logger.Warn("Login failed - invalid password", "reseller_id", reseller.ID)
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Invalid credentials"})
		return
	}

	if reseller.Status != models.ResellerActive {
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Account is inactive"})
		return
	}

	token, err := h.generateJWT(reseller.ID, reseller.Email)
	if err != nil {
		h.logger.Error("Failed to generate JWT", "error", err)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to generate token"})
		return
	}

	h.logger.Info("Reseller logged in", "reseller_id", reseller.ID)

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "Login successful",
		Data: map[string]interface{}{
			"token":    token,
			"reseller": reseller,
		},
	})
}

// GenerateAPIKey replaces the caller's API key. The new key is only ever
// returned here; the audit row records that a key was issued, not the key.
func (h *Handler) GenerateAPIKey(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetResellerFromContext(r)
	if claims == nil {
		h.sendJSON(w, http.StatusUnauthorized, Response{Success: false, Error: "Unauthorized access"})
		return
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		h.logger.Error("Failed to generate API key", "error", err)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to generate API key"})
		return
	}

	result, err := h.db.ExecContext(r.Context(),
		"UPDATE resellers SET api_key = $1, updated_at = NOW() WHERE id = $2",
		apiKey, claims.ResellerID,
	)
	if err != nil {
		h.logger.Error("Failed to store API key", "error", err, "reseller_id", claims.ResellerID)
		h.sendJSON(w, http.StatusInternalServerError, Response{Success: false, Error: "Failed to update API key"})
		return
	}
	if n, _ := result.RowsAffected(); n == 0 {
		h.sendJSON(w, http.StatusNotFound, Response{Success: false, Error: "Reseller not found"})
		return
	}

	h.record(r, apiKeyEndpoint, claims.ResellerID, "{}", `{"success":true,"api_key_generated":true}`, http.StatusOK)
	h.logger.Info("API key generated", "reseller_id", claims.ResellerID)

	h.sendJSON(w, http.StatusOK, Response{
		Success: true,
		Message: "API key generated successfully",
		Data:    map[string]string{"api_key": apiKey},
	})
}

func (h *Handler) generateJWT(resellerID int, email string) (string, error) {
	now := h.now()
	claims := middleware.Claims{
		ResellerID: resellerID,
		Email:      email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(h.jwtTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.jwtSecret))
}

// generateAPIKey returns "qtro_" followed by 64 hex characters.
func generateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}
