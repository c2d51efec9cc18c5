package vouchers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"hotspot-billing.com/platform/internal/models"
	"hotspot-billing.com/platform/pkg/metrics"
)

// CreatedAtLayout is the format callers use for created_at.
const CreatedAtLayout = "2006-01-02 15:04:05"

type ItemStatus string

const (
	StatusStored    ItemStatus = "stored"
	StatusDuplicate ItemStatus = "duplicate"
	StatusInvalid   ItemStatus = "invalid"
	StatusFailed    ItemStatus = "failed"
)

// BatchItem is one voucher from a batch request. Fields that were present
// with the wrong JSON type decode as empty.
type BatchItem struct {
	VoucherCode string
	Profile     string
	Validity    string
	CreatedAt   string
	Comment     string
	Metadata    json.RawMessage
}

type ItemResult struct {
	VoucherCode string     `json:"voucher_code"`
	Status      ItemStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	PackageID   int        `json:"package_id,omitempty"`
	PackageName string     `json:"package_name,omitempty"`
	Match       string     `json:"match,omitempty"`
}

type BatchSummary struct {
	Total   int          `json:"total"`
	Stored  int          `json:"stored"`
	Failed  int          `json:"failed"`
	Results []ItemResult `json:"results"`
}

// DecodeItem reads one element of the vouchers array. Anything that is not
// a JSON object yields an empty item, which later fails validation.
func DecodeItem(raw json.RawMessage) BatchItem {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return BatchItem{}
	}

	item := BatchItem{
		VoucherCode: stringField(fields, "voucher_code"),
		Profile:     stringField(fields, "profile"),
		Validity:    stringField(fields, "validity"),
		CreatedAt:   stringField(fields, "created_at"),
		Comment:     stringField(fields, "comment"),
	}
	if m, ok := fields["metadata"]; ok && !isNull(m) {
		item.Metadata = m
	}
	return item
}

func stringField(fields map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := fields[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// ProcessBatch stores each item in order. A failing item never stops the
// batch; its outcome is reported in the summary instead.
func (s *Service) ProcessBatch(ctx context.Context, reseller models.Reseller, router models.Hotspot, items []BatchItem) BatchSummary {
	summary := BatchSummary{Total: len(items), Results: make([]ItemResult, 0, len(items))}

	for _, item := range items {
		result := s.processItem(ctx, reseller, router, item)
		if result.Status == StatusStored {
			summary.Stored++
		} else {
			summary.Failed++
		}
		metrics.VoucherResults.WithLabelValues(string(result.Status)).Inc()
		summary.Results = append(summary.Results, result)
	}

	return summary
}

func (s *Service) processItem(ctx context.Context, reseller models.Reseller, router models.Hotspot, item BatchItem) ItemResult {
	result := ItemResult{VoucherCode: item.VoucherCode}

	if item.VoucherCode == "" || item.Validity == "" {
		result.Status = StatusInvalid
		result.Message = "Missing required fields: voucher_code or validity"
		return result
	}

	createdAt := s.now()
	if item.CreatedAt != "" {
		t, err := time.ParseInLocation(CreatedAtLayout, item.CreatedAt, time.Local)
		if err != nil {
			result.Status = StatusInvalid
			result.Message = "Invalid created_at, expected YYYY-MM-DD HH:MM:SS"
			return result
		}
		createdAt = t
	}

	exists, err := s.CodeExists(ctx, item.VoucherCode)
	if err != nil {
		return failed(result, err)
	}
	if exists {
		result.Status = StatusDuplicate
		return result
	}

	res, err := s.ResolvePackage(ctx, reseller.ID, DurationCandidates(item.Validity))
	if errors.Is(err, ErrNoPackage) {
		result.Status = StatusInvalid
		result.Message = fmt.Sprintf("No package found for validity: %s (reseller_id: %d)", item.Validity, reseller.ID)
		return result
	}
	if err != nil {
		return failed(result, err)
	}
	metrics.PackageMatches.WithLabelValues(res.Match).Inc()

	metadata := item.Metadata
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}

	_, err = s.StoreVoucher(ctx, NewVoucher{
		Code:       item.VoucherCode,
		Password:   voucherPassword(item),
		PackageID:  res.Package.ID,
		ResellerID: reseller.ID,
		RouterID:   sql.NullInt64{Int64: int64(router.ID), Valid: router.ID != 0},
		Profile:    item.Profile,
		Validity:   item.Validity,
		Comment:    item.Comment,
		Metadata:   metadata,
		CreatedAt:  createdAt,
	})
	if err != nil {
		if isUniqueViolation(err) {
			s.logger.Warn("Voucher code inserted concurrently", "code", item.VoucherCode, "reseller_id", reseller.ID)
		}
		result.Status = StatusFailed
		result.Message = "Database insert failed: " + err.Error()
		return result
	}

	result.Status = StatusStored
	result.PackageID = res.Package.ID
	result.PackageName = res.Package.Name
	result.Match = res.Match
	return result
}

func failed(result ItemResult, err error) ItemResult {
	result.Status = StatusFailed
	result.Message = err.Error()
	return result
}

// voucherPassword prefers a non-empty metadata.password, else the code.
func voucherPassword(item BatchItem) string {
	var meta struct {
		Password interface{} `json:"password"`
	}
	if len(item.Metadata) > 0 && json.Unmarshal(item.Metadata, &meta) == nil {
		if p, ok := meta.Password.(string); ok && p != "" {
			return p
		}
	}
	return item.VoucherCode
}
