// Package settlement предоставляет порт к внешнему расчётному слою,
// выполняющему фактическое перемещение средств между счетами.
package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrInsufficientFunds возвращается, когда на счёте пула недостаточно средств
// для перевода. Операция, зависящая от перевода, обязана завершиться атомарно.
var ErrInsufficientFunds = errors.New("insufficient funds in settlement layer")

// Port описывает примитив атомарного перевода средств. Перевод либо полностью
// выполняется, либо полностью отклоняется: частичных переводов не бывает.
type Port interface {
	Transfer(ctx context.Context, to string, amount int64) error
}

// Client инкапсулирует HTTP-взаимодействие с расчётным слоем.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт HTTP-клиент расчётного слоя по указанному адресу.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type transferRequest struct {
	To     string `json:"to"`
	Amount int64  `json:"amount"`
}

// Transfer выполняет перевод amount на счёт to. Ошибки не ретраятся:
// повтор неоднозначно завершившегося перевода может привести к двойной выплате.
func (c *Client) Transfer(ctx context.Context, to string, amount int64) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("settlement client not configured")
	}
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	body, err := json.Marshal(transferRequest{To: to, Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/transfers", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusPaymentRequired:
		return fmt.Errorf("%w: transfer of %d to %s", ErrInsufficientFunds, amount, to)
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}
