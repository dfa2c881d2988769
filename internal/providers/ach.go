package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// ChargeRequest is one submission to the transfer processor.
type ChargeRequest struct {
	InstrumentID string `json:"instrument_id"`
	Amount       int64  `json:"amount"` // minor units
	Memo         string `json:"memo"`
	AccountID    string `json:"destination_account_id"`
}

// ChargeResult is the synchronous acceptance response. The terminal status
// arrives later out of band on the settlement stream.
type ChargeResult struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"` // accepted, rejected
	EffectiveDate time.Time `json:"effective_date"`
	ProcessingFee int64     `json:"processing_fee"`
	Reason        string    `json:"reason,omitempty"`
}

// ChargeSubmitter submits a charge for asynchronous settlement.
type ChargeSubmitter interface {
	SubmitCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ACHClient talks to the ACH/transfer processor.
type ACHClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewACHClient creates the transfer-processor client.
func NewACHClient(baseURL, apiKey string, logger *zap.Logger) *ACHClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &ACHClient{httpClient: client, logger: logger}
}

type achResponse struct {
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
	Result ChargeResult `json:"result"`
}

// SubmitCharge submits the transfer. A non-accepted result is returned to the
// caller, not converted into an error; transport failures are errors.
func (c *ACHClient) SubmitCharge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	c.logger.Info("Submitting charge to transfer processor",
		zap.String("instrument_id", req.InstrumentID),
		zap.Int64("amount", req.Amount),
		zap.String("destination", req.AccountID),
	)

	var response achResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&response).
		SetError(&response).
		Post("/transfers")
	if err != nil {
		c.logger.Error("Transfer submission failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call transfer processor: %w", err)
	}
	if resp.IsError() || response.Status != "ok" {
		c.logger.Error("Transfer processor returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", response.Error),
		)
		return nil, fmt.Errorf("transfer processor error: %s (http %d)", response.Error, resp.StatusCode())
	}

	result := response.Result
	c.logger.Info("Charge submitted",
		zap.String("transaction_id", result.TransactionID),
		zap.String("status", result.Status),
		zap.Int64("processing_fee", result.ProcessingFee),
	)
	return &result, nil
}
