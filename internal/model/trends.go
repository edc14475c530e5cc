package model

import "time"

// Age bucket filters for aggregation.
const (
	AgeBucketAll     = "all"
	AgeBucketUnder30 = "<30"
	AgeBucket30To50  = "30..50"
	AgeBucketOver50  = ">50"
)

// AggregateFilter selects measurements by createdAt range and owner
// demographics. Zero-valued string filters mean "all".
type AggregateFilter struct {
	From      time.Time
	To        time.Time
	AgeBucket string
	Gender    string
	Position  string
}

// RiskDistribution holds integer percentages over risk classes; for a
// non-empty bucket they sum to 100.
type RiskDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// TrendBucket is a day-granularity aggregation unit keyed YYYY-MM-DD.
type TrendBucket struct {
	Date              string           `json:"date"`
	Count             int              `json:"count"`
	MeanPregnancies   float64          `json:"meanPregnancies"`
	MeanGlucose       float64          `json:"meanGlucose"`
	MeanBloodPressure float64          `json:"meanBloodPressure"`
	MeanInsulin       float64          `json:"meanInsulin"`
	MeanBMI           float64          `json:"meanBmi"`
	MeanProbability   float64          `json:"meanProbability"`
	RiskDistribution  RiskDistribution `json:"riskDistribution"`
}

// RiskBucket is the risk-only projection of a day bucket.
type RiskBucket struct {
	Date             string           `json:"date"`
	Count            int              `json:"count"`
	RiskDistribution RiskDistribution `json:"riskDistribution"`
}
