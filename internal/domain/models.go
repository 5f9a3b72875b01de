package domain

import (
	"math"
	"time"
)

// Status is the outcome class of a single provider probe.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
	StatusDisabled Status = "disabled"
	// StatusChecking only exists while a probe is in flight; it is never stored.
	StatusChecking Status = "checking"
)

// Persistable reports whether observations with this status belong in history.
func (s Status) Persistable() bool {
	return s == StatusSuccess || s == StatusError
}

// ProviderResult is what a status check reports for one provider.
type ProviderResult struct {
	Name         string   `json:"name"`
	Status       Status   `json:"status"`
	Response     *string  `json:"response"`
	Error        *string  `json:"error"`
	ResponseTime *float64 `json:"response_time"` // ms
}

// Observation returns the persisted form of r for the given provider key.
func (r ProviderResult) Observation(provider string) Observation {
	return Observation{
		Provider:     provider,
		Status:       r.Status,
		ResponseTime: r.ResponseTime,
		Error:        r.Error,
	}
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MillisBetween returns the elapsed time between start and end in ms, rounded to 2 decimals.
func MillisBetween(start, end time.Time) float64 {
	return Round2(float64(end.Sub(start)) / float64(time.Millisecond))
}
