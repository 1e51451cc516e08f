package models

import "time"

// Quote: котировка из стримингового API.
type Quote struct {
	Epic      string
	Product   string
	Bid       float64
	BidQty    float64
	Ofr       float64
	OfrQty    float64
	Timestamp time.Time
}
