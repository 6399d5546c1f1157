package merge

import (
	"testing"

	"GoPredict/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOverlaysMatchingSecondary(t *testing.T) {
	t.Parallel()

	primary := []models.Record{
		{"symbol": "AAPL", "target_date": "2025-03-04", "predicted_close": 181.2, "signal": "hold"},
		{"symbol": "MSFT", "target_date": "2025-03-04", "predicted_close": 402.0},
		{"symbol": "TSLA", "target_date": "2025-03-05", "predicted_close": 199.9},
	}
	secondary := []models.Record{
		{"symbol": "MSFT", "target_date": "2025-03-04", "opportunity": true, "signal": "buy"},
		{"symbol": "AAPL", "target_date": "2025-03-04", "signal": "sell", "opportunity": false},
		{"symbol": "AAPL", "target_date": "2025-03-04", "signal": "ignored duplicate"},
		{"symbol": "TSLA", "target_date": "2025-03-04", "opportunity": true},
	}

	out := Merge(primary, secondary)
	require.Len(t, out, len(primary))

	assert.Equal(t, models.Record{"symbol": "AAPL", "target_date": "2025-03-04", "predicted_close": 181.2, "signal": "sell", "opportunity": false}, out[0])
	assert.Equal(t, models.Record{"symbol": "MSFT", "target_date": "2025-03-04", "predicted_close": 402.0, "opportunity": true, "signal": "buy"}, out[1])
	assert.Equal(t, models.Record{"symbol": "TSLA", "target_date": "2025-03-05", "predicted_close": 199.9}, out[2], "unmatched primary gains no fields")
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	primary := []models.Record{{"symbol": "A", "target_date": "d", "x": 1.0}}
	secondary := []models.Record{{"symbol": "A", "target_date": "d", "x": 2.0, "y": true}}

	out := Merge(primary, secondary)
	out[0]["z"] = "added"

	assert.Equal(t, models.Record{"symbol": "A", "target_date": "d", "x": 1.0}, primary[0])
	assert.Equal(t, models.Record{"symbol": "A", "target_date": "d", "x": 2.0, "y": true}, secondary[0])
}

func TestMergeCardinality(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		primary   []models.Record
		secondary []models.Record
	}{
		{name: "empty secondary", primary: []models.Record{{"symbol": "A", "target_date": "d"}}},
		{name: "empty primary", secondary: []models.Record{{"symbol": "A", "target_date": "d"}}},
		{name: "both empty"},
		{
			name:      "secondary larger than primary",
			primary:   []models.Record{{"symbol": "A", "target_date": "d"}},
			secondary: []models.Record{{"symbol": "A", "target_date": "d"}, {"symbol": "B", "target_date": "d"}, {"symbol": "C", "target_date": "d"}},
		},
		{
			name:      "duplicate primaries all match",
			primary:   []models.Record{{"symbol": "A", "target_date": "d"}, {"symbol": "A", "target_date": "d"}},
			secondary: []models.Record{{"symbol": "A", "target_date": "d", "hit": true}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Merge(tt.primary, tt.secondary)
			require.NotNil(t, out)
			assert.Len(t, out, len(tt.primary))
			for i := range out {
				for f := range out[i] {
					_, inPrimary := tt.primary[i][f]
					inSecondary := false
					for _, s := range tt.secondary {
						if _, ok := s[f]; ok {
							inSecondary = true
						}
					}
					assert.True(t, inPrimary || inSecondary, "field %q appeared from nowhere", f)
				}
			}
		})
	}
}

func TestMergeIncompleteKeysNeverMatch(t *testing.T) {
	t.Parallel()

	primary := []models.Record{
		{"symbol": "A"},
		{"target_date": "d"},
		{"symbol": nil, "target_date": "d"},
		{"symbol": []any{"A"}, "target_date": "d"},
		{"symbol": map[string]any{"v": "A"}, "target_date": "d"},
	}
	secondary := []models.Record{
		{"symbol": "A", "hit": true},
		{"target_date": "d", "hit": true},
		{"symbol": nil, "target_date": "d", "hit": true},
		{"symbol": []any{"A"}, "target_date": "d", "hit": true},
	}

	out := Merge(primary, secondary)
	require.Len(t, out, len(primary))
	for i, r := range out {
		assert.NotContains(t, r, "hit", "record %d should not match", i)
	}
}

func TestMergeKeysAreTypeSensitive(t *testing.T) {
	t.Parallel()

	primary := []models.Record{
		{"symbol": "1", "target_date": "d"},
		{"symbol": 1.0, "target_date": "d"},
	}
	secondary := []models.Record{
		{"symbol": 1.0, "target_date": "d", "numeric": true},
	}

	out := Merge(primary, secondary)
	assert.NotContains(t, out[0], "numeric")
	assert.Equal(t, true, out[1]["numeric"])
}
