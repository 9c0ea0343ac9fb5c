package chains

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// SolanaRPCClient is a minimal JSON-RPC 2.0 client for the handful of read
// methods the scanner needs (getBalance, getTokenAccountsByOwner,
// getTokenSupply).
type SolanaRPCClient struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// NewSolanaRPCClient creates a client for one RPC endpoint.
func NewSolanaRPCClient(endpoint string, timeout time.Duration) *SolanaRPCClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SolanaRPCClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type solanaRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type solanaRPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *solanaRPCError `json:"error,omitempty"`
}

type solanaRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *solanaRPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *SolanaRPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	reqBody := solanaRPCRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", method, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var rpcResp solanaRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("%s: decode response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s: %w", method, rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("%s: decode result: %w", method, err)
		}
	}
	return nil
}

// GetBalance returns the lamport balance of an account.
func (c *SolanaRPCClient) GetBalance(ctx context.Context, address string) (uint64, error) {
	var result struct {
		Value uint64 `json:"value"`
	}
	if err := c.call(ctx, "getBalance", []interface{}{address}, &result); err != nil {
		return 0, err
	}
	return result.Value, nil
}

// TokenAmount is the parsed token quantity inside an SPL token account.
type TokenAmount struct {
	Amount   string `json:"amount"`
	Decimals int    `json:"decimals"`
}

type tokenAccountsResult struct {
	Value []struct {
		Account struct {
			Data struct {
				Parsed struct {
					Info struct {
						TokenAmount TokenAmount `json:"tokenAmount"`
					} `json:"info"`
				} `json:"parsed"`
			} `json:"data"`
		} `json:"account"`
	} `json:"value"`
}

// GetTokenAccountsByOwner returns the parsed token amounts of every account
// the owner holds for one mint. Most wallets have zero or one.
func (c *SolanaRPCClient) GetTokenAccountsByOwner(ctx context.Context, owner, mint string) ([]TokenAmount, error) {
	params := []interface{}{
		owner,
		map[string]string{"mint": mint},
		map[string]string{"encoding": "jsonParsed"},
	}
	var result tokenAccountsResult
	if err := c.call(ctx, "getTokenAccountsByOwner", params, &result); err != nil {
		return nil, err
	}

	amounts := make([]TokenAmount, 0, len(result.Value))
	for _, v := range result.Value {
		amounts = append(amounts, v.Account.Data.Parsed.Info.TokenAmount)
	}
	return amounts, nil
}

// GetTokenSupplyDecimals returns the decimals of a mint via getTokenSupply.
func (c *SolanaRPCClient) GetTokenSupplyDecimals(ctx context.Context, mint string) (int, error) {
	var result struct {
		Value TokenAmount `json:"value"`
	}
	if err := c.call(ctx, "getTokenSupply", []interface{}{mint}, &result); err != nil {
		return 0, err
	}
	return result.Value.Decimals, nil
}
