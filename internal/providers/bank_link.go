package providers

import (
	"context"
	"fmt"
	"time"

	"rentpay-engine/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// bankLinkResponse wire shape of the bank-linking provider.
type bankLinkResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Record struct {
		ConnectionID  string `json:"connection_id"`
		Institution   string `json:"institution"`
		AccountMask   string `json:"account_mask"`
		RoutingNumber string `json:"routing_number"`
		AccountNumber string `json:"account_number"`
		Verified      bool   `json:"verified"`
		Limits        struct {
			PerTransaction int64 `json:"per_transaction"`
			Daily          int64 `json:"daily"`
			Monthly        int64 `json:"monthly"`
		} `json:"limits"`
	} `json:"record"`
}

// BankLinkClient exchanges a linking handshake result for a verified bank
// connection record.
type BankLinkClient struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewBankLinkClient creates the bank-linking provider client.
func NewBankLinkClient(baseURL, apiKey string, logger *zap.Logger) *BankLinkClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetAuthToken(apiKey)

	return &BankLinkClient{httpClient: client, logger: logger}
}

// ExchangeToken resolves the handshake token from the linking widget into a
// bank connection record. The record may come back unverified; verification
// completes asynchronously on the provider side.
func (c *BankLinkClient) ExchangeToken(ctx context.Context, publicToken string) (*models.BankConnection, error) {
	var response bankLinkResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(map[string]string{"public_token": publicToken}).
		SetResult(&response).
		SetError(&response).
		Post("/link/exchange")
	if err != nil {
		c.logger.Error("Bank-link token exchange failed", zap.Error(err))
		return nil, fmt.Errorf("failed to call bank-link provider: %w", err)
	}
	if resp.IsError() || response.Status != "ok" {
		c.logger.Error("Bank-link provider returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("error", response.Error),
		)
		return nil, fmt.Errorf("bank-link provider error: %s (http %d)", response.Error, resp.StatusCode())
	}

	rec := response.Record
	conn := &models.BankConnection{
		ConnectionID:  rec.ConnectionID,
		Institution:   rec.Institution,
		AccountMask:   rec.AccountMask,
		RoutingNumber: rec.RoutingNumber,
		AccountNumber: rec.AccountNumber,
		Verified:      rec.Verified,
		Limits: models.InstrumentLimits{
			PerTransaction: rec.Limits.PerTransaction,
			Daily:          rec.Limits.Daily,
			Monthly:        rec.Limits.Monthly,
		},
	}

	c.logger.Info("Bank connection linked",
		zap.String("connection_id", conn.ConnectionID),
		zap.String("institution", conn.Institution),
		zap.Bool("verified", conn.Verified),
	)
	return conn, nil
}

// GetConnection fetches the current state of an existing connection, used to
// poll verification status.
func (c *BankLinkClient) GetConnection(ctx context.Context, connectionID string) (*models.BankConnection, error) {
	var response bankLinkResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&response).
		SetError(&response).
		Get("/link/connections/" + connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bank connection: %w", err)
	}
	if resp.IsError() || response.Status != "ok" {
		return nil, fmt.Errorf("bank-link provider error: %s (http %d)", response.Error, resp.StatusCode())
	}

	rec := response.Record
	return &models.BankConnection{
		ConnectionID:  rec.ConnectionID,
		Institution:   rec.Institution,
		AccountMask:   rec.AccountMask,
		RoutingNumber: rec.RoutingNumber,
		AccountNumber: rec.AccountNumber,
		Verified:      rec.Verified,
		Limits: models.InstrumentLimits{
			PerTransaction: rec.Limits.PerTransaction,
			Daily:          rec.Limits.Daily,
			Monthly:        rec.Limits.Monthly,
		},
	}, nil
}
