package models

// IngestRequest is the wire schema accepted by every ingestion transport.
// Value is a pointer so a missing field is distinguishable from zero.
type IngestRequest struct {
	MetricName string   `json:"metric_name" validate:"required,max=256"`
	Timestamp  string   `json:"timestamp" validate:"required"`
	Value      *float64 `json:"value" validate:"required"`
}

const (
	DefaultRecentN   = 20
	DefaultAlertsMax = 50
)

// KPIQuery selects how many recent samples the presentation view returns.
// Build it with NewKPIQuery so an absent n gets the default while an explicit n=0 still fails validation.
type KPIQuery struct {
	Name string `param:"name" json:"name"`
	N    int    `query:"n" json:"n" validate:"gte=1,lte=10000"`
}

func NewKPIQuery() *KPIQuery { return &KPIQuery{N: DefaultRecentN} }

// KPIView is the read-only presentation of one metric.
type KPIView struct {
	Name     string   `json:"name"`
	Count    int      `json:"count"`
	Recent   []Sample `json:"recent"`
	Forecast Forecast `json:"forecast"`
	Verdict  Verdict  `json:"verdict"`
}

// AlertQuery filters the alert history.
type AlertQuery struct {
	Metric string `query:"metric" json:"metric"`
	Limit  int    `query:"limit" json:"limit" validate:"gte=1,lte=1000"`
}

func NewAlertQuery() *AlertQuery { return &AlertQuery{Limit: DefaultAlertsMax} }
