package models

import (
	"fmt"
	"strings"
)

// DatasetKey identifies a cached logical dataset.
type DatasetKey string

const (
	DatasetDailyPredictions    DatasetKey = "dailyPredictions"
	DatasetIntradayPredictions DatasetKey = "intradayPredictions"
	DatasetTradebook           DatasetKey = "tradebook"
)

// RefreshAll selects every dataset in refresh requests.
const RefreshAll = "all"

// AllDatasets lists the cached datasets in a stable order.
var AllDatasets = []DatasetKey{
	DatasetDailyPredictions,
	DatasetIntradayPredictions,
	DatasetTradebook,
}

// Kind returns the short name used by API callers and on notifications.
func (k DatasetKey) Kind() string {
	switch k {
	case DatasetDailyPredictions:
		return "daily"
	case DatasetIntradayPredictions:
		return "intraday"
	case DatasetTradebook:
		return "tradebook"
	default:
		return string(k)
	}
}

func (k DatasetKey) String() string { return string(k) }

// ParseDatasetKey accepts canonical keys and their short aliases.
func ParseDatasetKey(s string) (DatasetKey, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "dailypredictions", "daily-predictions":
		return DatasetDailyPredictions, nil
	case "intraday", "intradaypredictions", "intraday-predictions":
		return DatasetIntradayPredictions, nil
	case "tradebook":
		return DatasetTradebook, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
	}
}

// ParseRefreshTarget resolves a dataset key or "all" into the datasets to refresh.
func ParseRefreshTarget(s string) ([]DatasetKey, error) {
	if strings.EqualFold(strings.TrimSpace(s), RefreshAll) {
		out := make([]DatasetKey, len(AllDatasets))
		copy(out, AllDatasets)
		return out, nil
	}
	k, err := ParseDatasetKey(s)
	if err != nil {
		return nil, err
	}
	return []DatasetKey{k}, nil
}
