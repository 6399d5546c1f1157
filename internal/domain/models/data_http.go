package models

// Requests for data HTTP endpoints.

type RefreshRequest struct {
	Type string `query:"type" json:"type" default:"all" validate:"oneof=daily intraday tradebook all dailyPredictions intradayPredictions"`
}

type ClearNotificationsRequest struct {
	Type string `query:"type" json:"type" validate:"required,oneof=daily intraday tradebook dailyPredictions intradayPredictions"`
}
