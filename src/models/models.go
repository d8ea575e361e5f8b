package models

// Decimal fields travel as strings end to end so the 8-digit scale is
// never disturbed by float encoding.

type SubmitOrderRequest struct {
	MemberID int64  `json:"memberId"`
	Coin     string `json:"coin"`   // e.g. BTC
	Market   string `json:"market"` // e.g. KRW
	Side     string `json:"side"`   // BUY or SELL
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Fee      string `json:"fee,omitempty"`
}

type SubmitOrderResponse struct {
	TrackingID        string     `json:"trackingId"`
	Pair              string     `json:"pair"`
	Rested            bool       `json:"rested"`
	RemainingQuantity string     `json:"remainingQuantity"`
	Fills             []FillInfo `json:"fills,omitempty"`
}

type FillInfo struct {
	TrackingID     string `json:"trackingId"`
	Side           string `json:"side"`
	ExecutionPrice string `json:"executionPrice"`
	Quantity       string `json:"quantity"`
	MatchChain     string `json:"matchChain"`
	MatchedAt      string `json:"matchedAt"`
}

type OrderResponse struct {
	TrackingID     string `json:"trackingId"`
	Pair           string `json:"pair"`
	Side           string `json:"side"`
	Price          string `json:"price"`
	Quantity       string `json:"quantity"`
	Status         string `json:"status"`
	CreatedAt      string `json:"createdAt"`
	MatchedAt      string `json:"matchedAt,omitempty"`
	ExecutionPrice string `json:"executionPrice,omitempty"`
	MatchChain     string `json:"matchChain,omitempty"`
}

type CancelOrderResponse struct {
	TrackingID string `json:"trackingId"`
	Status     string `json:"status"`
}

type DepthLevelInfo struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

type DepthResponse struct {
	Pair string           `json:"pair"`
	Bids []DepthLevelInfo `json:"bids"` // best (highest) price first
	Asks []DepthLevelInfo `json:"asks"` // best (lowest) price first
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
