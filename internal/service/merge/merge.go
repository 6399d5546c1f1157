// Package merge joins related record sets on their (symbol, target_date) key.
package merge

import (
	"fmt"

	"GoPredict/internal/domain/models"
)

const (
	FieldSymbol     = "symbol"
	FieldTargetDate = "target_date"
)

type joinKey struct {
	symbol string
	date   string
}

// Merge left-outer joins secondary onto primary. Every primary record is
// copied and the first matching secondary record's fields are laid over the
// copy. The result has the length and order of primary; neither input is
// modified.
func Merge(primary, secondary []models.Record) []models.Record {
	index := make(map[joinKey]models.Record, len(secondary))
	for _, r := range secondary {
		k, ok := keyOf(r)
		if !ok {
			continue
		}
		if _, dup := index[k]; !dup {
			index[k] = r
		}
	}

	out := make([]models.Record, 0, len(primary))
	for _, p := range primary {
		merged := p.Clone()
		if k, ok := keyOf(p); ok {
			if s, found := index[k]; found {
				for f, v := range s {
					merged[f] = v
				}
			}
		}
		out = append(out, merged)
	}
	return out
}

func keyOf(r models.Record) (joinKey, bool) {
	sym, ok := scalarKey(r[FieldSymbol])
	if !ok {
		return joinKey{}, false
	}
	date, ok := scalarKey(r[FieldTargetDate])
	if !ok {
		return joinKey{}, false
	}
	return joinKey{symbol: sym, date: date}, true
}

// scalarKey renders a key value. Missing, null and composite values do not
// take part in the join.
func scalarKey(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return "s:" + t, true
	case float64, int, int64, bool:
		return fmt.Sprintf("%T:%v", t, t), true
	default:
		return "", false
	}
}
