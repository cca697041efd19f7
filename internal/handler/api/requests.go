package api

// ScanRequest is the body of POST /api/scan.
type ScanRequest struct {
	Date     string   `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Universe []string `json:"universe" validate:"omitempty,max=2000,dive,required,max=16"`
	Strategy string   `json:"strategy" validate:"omitempty,oneof=swing position longterm"`
	Apply    *bool    `json:"apply"`
}

type EvaluateRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type RegimeRequest struct {
	Date string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

// ListRequest filters GET /api/recommendations.
type ListRequest struct {
	Status   string `query:"status" validate:"omitempty,oneof=ACTIVE BROKEN ARCHIVED REPLACED"`
	Symbol   string `query:"symbol" validate:"omitempty,max=16"`
	Strategy string `query:"strategy" validate:"omitempty,oneof=swing position longterm"`
	Limit    int    `query:"limit" default:"100" validate:"min=1,max=1000"`
}
