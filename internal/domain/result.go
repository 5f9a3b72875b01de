package domain

import "time"

// Observation is one row of the append-only status history.
// ResponseTime is set iff Status is success; Error is set iff Status is error.
type Observation struct {
	ID           int64     `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Provider     string    `json:"provider_name"`
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"` // pointer to allow nil
	Error        *string   `json:"error"`         // pointer to allow nil
}

// HistoryEntry is an observation as returned by the history query.
type HistoryEntry struct {
	Timestamp    time.Time `json:"timestamp"`
	Status       Status    `json:"status"`
	ResponseTime *float64  `json:"response_time"`
	Error        *string   `json:"error"`
}

// Entry strips the provider and id from o.
func (o Observation) Entry() HistoryEntry {
	return HistoryEntry{
		Timestamp:    o.Timestamp,
		Status:       o.Status,
		ResponseTime: o.ResponseTime,
		Error:        o.Error,
	}
}

// UptimeStats is the rollup for one provider over a trailing window.
type UptimeStats struct {
	TotalChecks     int64    `json:"total_checks"`
	SuccessCount    int64    `json:"success_count"`
	UptimePercent   float64  `json:"uptime_percent"`
	AvgResponseTime *float64 `json:"avg_response_time"`
	MinResponseTime *float64 `json:"min_response_time"`
	MaxResponseTime *float64 `json:"max_response_time"`
}

// UptimePercent is round2(success/total*100), or 0 with no checks.
func UptimePercent(success, total int64) float64 {
	if total == 0 {
		return 0
	}
	return Round2(float64(success) / float64(total) * 100)
}
