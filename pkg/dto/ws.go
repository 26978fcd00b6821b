package dto

// WSMessage is one real-time message to an operator client.
// Kind: event, status, alert, gap.
type WSMessage struct {
	Kind        string         `json:"kind"`
	Event       *EventResponse `json:"event,omitempty"`
	MatchedRisk string         `json:"matched_risk,omitempty"`
	Status      *StatusMessage `json:"status,omitempty"`
	Alert       string         `json:"alert,omitempty"`
	Dropped     int            `json:"dropped,omitempty"`
}

// StatusMessage carries a verification-state transition. Clients apply
// it to the event they already hold rather than refetching.
type StatusMessage struct {
	EventID           string `json:"event_id"`
	CameraID          string `json:"camera_id"`
	VerificationState string `json:"verification_state"`
	LedgerTxID        string `json:"ledger_tx_id,omitempty"`
}
