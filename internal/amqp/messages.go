package amqp

import "time"

// ChartQueryMessage is the audit record emitted for every chart data
// request, accepted or rejected.
type ChartQueryMessage struct {
	ChartID   string    `json:"chart_id"`
	UserID    int64     `json:"user_id"`
	Mode      string    `json:"mode"`
	Rejected  bool      `json:"rejected"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// RoutingKeyChartQuery routes audit records to the audit queue.
	RoutingKeyChartQuery = "chart.query"
)
