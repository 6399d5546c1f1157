// Package notify derives notifications from boolean trigger fields.
package notify

import (
	"slices"
	"strconv"

	"GoPredict/internal/domain/models"
)

const unknownIdentity = "unknown"

// excluded fields are booleans that describe record state rather than events.
var excluded = map[string]struct{}{
	"used":   {},
	"active": {},
	"status": {},
}

// identityFields are tried in order to name a record.
var identityFields = []string{"symbol", "ticker", "id"}

// Scan emits one notification per field holding boolean true. Every call
// is a full rescan; a field that stays true is reported again each time.
func Scan(records []models.Record, kind string) []models.Notification {
	out := make([]models.Notification, 0)
	for _, r := range records {
		fields := make([]string, 0, len(r))
		for f, v := range r {
			if _, skip := excluded[f]; skip {
				continue
			}
			if b, ok := v.(bool); ok && b {
				fields = append(fields, f)
			}
		}
		if len(fields) == 0 {
			continue
		}
		slices.Sort(fields)
		id := Identity(r)
		for _, f := range fields {
			out = append(out, models.Notification{
				Dataset:  kind,
				Identity: id,
				Field:    f,
				Record:   r,
			})
		}
	}
	return out
}

// Identity names a record by the first non-empty identity field.
func Identity(r models.Record) string {
	for _, f := range identityFields {
		switch v := r[f].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return unknownIdentity
}
