package model

// PayoutRequest is the body sent to the payout provider. Amount is in major units.
type PayoutRequest struct {
	Reference   string `json:"reference"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
}

// PayoutResponse is the provider's acknowledgement.
type PayoutResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}
