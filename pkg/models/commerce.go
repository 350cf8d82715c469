package models

// Money represents a monetary value in a specific currency. Amounts are in
// major units (rupees, not paise) as the payment provider expects.
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type Flavor struct {
	Name  string `json:"name"`
	Price Money  `json:"price"`
}

type PaymentLink struct {
	ID        string `json:"link_id"`
	URL       string `json:"link_url"`
	Status    string `json:"link_status"`
	Amount    Money  `json:"amount"`
	Phone     string `json:"customer_phone"`
	ExpiresAt string `json:"link_expiry_time,omitempty"`
}

type Transfer struct {
	ID          string  `json:"transfer_id"`
	ReferenceID string  `json:"reference_id,omitempty"`
	Beneficiary string  `json:"beneficiary"`
	Amount      float64 `json:"amount"`
	Status      string  `json:"status"`
}
