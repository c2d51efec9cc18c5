package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

const (
	ResellerActive   = "active"
	ResellerInactive = "inactive"
)

type Reseller struct {
	ID           int            `json:"id"`
	BusinessName string         `json:"business_name"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	Status       string         `json:"status"`
	APIKey       sql.NullString `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Hotspot is a router. Its Name is what API callers send as router_id.
type Hotspot struct {
	ID         int    `json:"id"`
	ResellerID int    `json:"reseller_id"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
}

type Package struct {
	ID         int    `json:"id"`
	ResellerID int    `json:"reseller_id"`
	Name       string `json:"name"`
	Duration   string `json:"duration"`
	IsActive   bool   `json:"is_active"`
}

type Voucher struct {
	ID          int             `json:"id"`
	Code        string          `json:"code"`
	Username    string          `json:"username"`
	Password    string          `json:"-"`
	PackageID   int             `json:"package_id"`
	PackageName string          `json:"package_name,omitempty"`
	ResellerID  int             `json:"reseller_id"`
	RouterID    sql.NullInt64   `json:"-"`
	Profile     string          `json:"profile"`
	Validity    string          `json:"validity"`
	Comment     string          `json:"comment"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	APICreated  bool            `json:"api_created"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// APILog is one row per API call, not per voucher.
type APILog struct {
	ID           int           `json:"id"`
	ResellerID   sql.NullInt64 `json:"-"`
	Endpoint     string        `json:"endpoint"`
	Method       string        `json:"method"`
	RequestData  string        `json:"request_data"`
	ResponseData string        `json:"response_data"`
	StatusCode   int           `json:"status_code"`
	IPAddress    string        `json:"ip_address"`
	UserAgent    string        `json:"user_agent"`
	CreatedAt    time.Time     `json:"created_at"`
}
