package upstream

import (
	"strings"

	"GoPredict/internal/domain/models"

	json "github.com/goccy/go-json"
)

// DecodeRecords reads the records array of a flat dataset payload. An absent
// or null records field yields an empty, non-nil list.
func DecodeRecords(p *Payload) ([]models.Record, error) {
	var body struct {
		Records []models.Record `json:"records"`
	}
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, &models.FetchError{Key: p.Key, Cause: "malformed records: " + err.Error(), Err: err}
	}
	return compact(body.Records), nil
}

type intradayPayload struct {
	PredictionTime any `json:"prediction_time"`
	TargetTime     any `json:"target_time"`
	Timeframe      any `json:"timeframe"`
	Data           []struct {
		Symbol      any              `json:"symbol"`
		Description any              `json:"description"`
		Predictions []map[string]any `json:"predictions"`
	} `json:"data"`
	Records []models.Record `json:"records"`
}

// strengthFields are carried over from a strength prediction.
var strengthFields = []string{
	"predicted_range",
	"predicted_midpoint",
	"predicted_onefourth",
	"predicted_threefourth",
	"predicted_trading_range",
	"momentum",
	"predicted_high_touched",
	"predicted_low_touched",
}

// DecodeIntraday flattens the nested per-symbol intraday structure into one
// row per symbol. A payload that already carries flat records is passed
// through.
func DecodeIntraday(p *Payload) ([]models.Record, error) {
	var body intradayPayload
	if err := json.Unmarshal(p.Body, &body); err != nil {
		return nil, &models.FetchError{Key: p.Key, Cause: "malformed intraday payload: " + err.Error(), Err: err}
	}
	if body.Data == nil {
		return compact(body.Records), nil
	}

	rows := make([]models.Record, 0, len(body.Data))
	for _, sym := range body.Data {
		row := models.Record{}
		setIfPresent(row, "prediction_time", body.PredictionTime)
		setIfPresent(row, "target_time", body.TargetTime)
		setIfPresent(row, "timeframe", body.Timeframe)
		setIfPresent(row, "symbol", sym.Symbol)
		setIfPresent(row, "Description", sym.Description)

		for _, pred := range sym.Predictions {
			typ, _ := pred["prediction_type"].(string)
			value := pred["predicted_value"]
			switch {
			case strings.Contains(typ, "high"):
				row["predicted_high"] = value
			case strings.Contains(typ, "low"):
				row["predicted_low"] = value
			case strings.Contains(typ, "close"):
				row["predicted_close"] = value
			case strings.Contains(typ, "trend"):
				row["predicted_trend"] = value
			case strings.Contains(typ, "strength"):
				row["predicted_strength"] = value
				for _, f := range strengthFields {
					if v, ok := pred[f]; ok {
						row[f] = v
					}
				}
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func setIfPresent(r models.Record, key string, v any) {
	if v != nil {
		r[key] = v
	}
}

func compact(in []models.Record) []models.Record {
	out := make([]models.Record, 0, len(in))
	for _, r := range in {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
