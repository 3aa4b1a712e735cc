package model

type FetchStatus string

const (
	FetchMeasured FetchStatus = "measured"
	FetchNoData   FetchStatus = "no_data"
	FetchFailed   FetchStatus = "failed"
)

// ProviderPoint is one entry of a provider response. A nil Elevation means
// the provider has no data for the point.
type ProviderPoint struct {
	Lat       float64  `json:"latitude"`
	Lng       float64  `json:"longitude"`
	Elevation *float64 `json:"elevation"`
}

// FetchResult is the outcome for one requested coordinate.
type FetchResult struct {
	Coordinate
	Elevation float64     `json:"elevation"`
	Status    FetchStatus `json:"status"`
	Source    string      `json:"source,omitempty"`
	Accuracy  Accuracy    `json:"accuracy,omitempty"`
}

func (r FetchResult) OK() bool {
	return r.Status == FetchMeasured
}
