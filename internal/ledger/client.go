package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/your-org/sentinel/internal/config"
)

// GatewayClient writes evidence registrations through the consensus
// ledger's HTTP gateway. The gateway exposes chaincode invocation as a
// REST call; consensus happens behind it.
type GatewayClient struct {
	baseURL   string
	channel   string
	chaincode string
	http      *http.Client
}

func NewGatewayClient(cfg config.LedgerConfig) *GatewayClient {
	return &GatewayClient{
		baseURL:   cfg.GatewayURL,
		channel:   cfg.Channel,
		chaincode: cfg.Chaincode,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
	}
}

type writeRequest struct {
	Channel     string `json:"channel"`
	Chaincode   string `json:"chaincode"`
	Function    string `json:"function"`
	EventID     string `json:"event_id"`
	PayloadHash string `json:"payload_hash"`
	SubmittedAt string `json:"submitted_at"`
}

type writeResponse struct {
	TxID  string `json:"tx_id"`
	Error string `json:"error,omitempty"`
}

// Write submits one evidence registration. HTTP 4xx (other than 429)
// means the ledger rejected the write; anything else that fails is
// transient.
func (c *GatewayClient) Write(ctx context.Context, eventID, payloadHash string) (string, error) {
	body, err := json.Marshal(writeRequest{
		Channel:     c.channel,
		Chaincode:   c.chaincode,
		Function:    "RegisterEvidence",
		EventID:     eventID,
		PayloadHash: payloadHash,
		SubmittedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", &Error{Kind: Rejected, Msg: "marshal write request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", &Error{Kind: Rejected, Msg: "build write request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &Error{Kind: Transient, Msg: "ledger gateway unreachable", Err: err}
	}
	defer resp.Body.Close()

	var wr writeResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil && resp.StatusCode < 300 {
		return "", &Error{Kind: Transient, Msg: "decode gateway response", Err: err}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if wr.TxID == "" {
			return "", &Error{Kind: Transient, Msg: "gateway returned no tx id"}
		}
		return wr.TxID, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", &Error{Kind: Transient, Msg: "gateway throttled"}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", &Error{Kind: Rejected, Msg: fmt.Sprintf("write rejected (%d): %s", resp.StatusCode, wr.Error)}
	default:
		return "", &Error{Kind: Transient, Msg: fmt.Sprintf("gateway error (%d): %s", resp.StatusCode, wr.Error)}
	}
}
