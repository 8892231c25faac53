package models

// PaywallOffer describes a priced deal-stage unlock. At most one offer is
// active per conversation at a time; a new offer replaces an unresolved
// one.
type PaywallOffer struct {
	Gate         string `json:"gate"`
	CurrentGate  string `json:"currentGate"`
	PriceCents   int64  `json:"priceCents"`
	BalanceCents int64  `json:"balanceCents"`
	Sufficient   bool   `json:"sufficient"`
}
