package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/dyike/RightOfWay/models"
)

type SettleRequest struct {
	PayerKey string
	Payee    string
	Amount   decimal.Decimal
	Memo     string
	Network  models.Network
}

type Receipt struct {
	TxHash string `json:"txHash"`
	URL    string `json:"url,omitempty"`
}

// Settler moves funds from payer to payee. One attempt, no retries.
type Settler interface {
	Settle(ctx context.Context, req SettleRequest) (Receipt, error)
}

// RelayerClient submits settlements to a payment relayer over HTTP.
type RelayerClient struct {
	client   *resty.Client
	contract string
}

func NewRelayerClient(baseURL, contract string, timeout time.Duration) *RelayerClient {
	client := resty.New()
	client.SetBaseURL(strings.TrimRight(baseURL, "/"))
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")

	return &RelayerClient{client: client, contract: contract}
}

type settleBody struct {
	Payee    string `json:"payee"`
	Amount   string `json:"amount"`
	Memo     string `json:"memo"`
	Network  string `json:"network"`
	ChainID  int64  `json:"chainId"`
	Contract string `json:"contract"`
}

func (c *RelayerClient) Settle(ctx context.Context, req SettleRequest) (Receipt, error) {
	netCfg := req.Network.Config()
	contract := c.contract
	if contract == "" {
		contract = netCfg.TrafficContract
	}

	var receipt Receipt
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(req.PayerKey).
		SetBody(settleBody{
			Payee:    req.Payee,
			Amount:   req.Amount.StringFixed(2),
			Memo:     req.Memo,
			Network:  string(netCfg.Name),
			ChainID:  netCfg.ChainID,
			Contract: contract,
		}).
		SetResult(&receipt).
		Post("/v1/settlements")
	if err != nil {
		return Receipt{}, fmt.Errorf("relayer request: %w", err)
	}
	if !resp.IsSuccess() {
		return Receipt{}, fmt.Errorf("relayer error %d: %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	if receipt.TxHash == "" {
		return Receipt{}, fmt.Errorf("relayer returned no transaction reference")
	}
	if receipt.URL == "" {
		receipt.URL = req.Network.TxURL(receipt.TxHash)
	}
	return receipt, nil
}
