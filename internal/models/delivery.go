// internal/models/delivery.go
package models

// DeliveryStatus is the per-recipient outcome of a dispatch attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	// DeliverySkipped: the recipient was rejected before any send attempt,
	// e.g. an address that fails validation.
	DeliverySkipped DeliveryStatus = "skipped"
)

type Recipient struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
}

// DeliveryRequest asks the dispatcher to mail one team's artifact.
type DeliveryRequest struct {
	TeamID     string      `json:"teamId"`
	Recipients []Recipient `json:"recipients"`
	Subject    string      `json:"subject"`
	Body       string      `json:"body"`
	Filename   string      `json:"filename"`
	Attachment []byte      `json:"-"`
}

// DeliveryResult is the outcome for one (team, recipient) pair.
type DeliveryResult struct {
	TeamID    string         `json:"teamId"`
	Recipient string         `json:"recipient"`
	Status    DeliveryStatus `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	Attempts  int            `json:"attempts"`
}
