package adminapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/linkledger/internal/common"
	"github.com/dmitrijs2005/linkledger/internal/money"
	"github.com/shopspring/decimal"
)

// Client calls the admin API with a bearer token. Failed calls return a
// *common.Error decoded from the response body.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient returns a client for the API at baseURL. A nil hc uses
// http.DefaultClient.
func NewClient(baseURL, token string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(baseURL, "/"), token: token, http: hc}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e errorJSON
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return common.NewError(e.Error, e.Message)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func accountPath(name string, rest ...string) string {
	return "/admin/accounts/" + url.PathEscape(name) + strings.Join(rest, "")
}

func (c *Client) List(ctx context.Context) ([]Account, error) {
	var out struct {
		Accounts []Account `json:"accounts"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/accounts", nil, &out); err != nil {
		return nil, err
	}
	return out.Accounts, nil
}

func (c *Client) Create(ctx context.Context, name, password string, balance decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, "/admin/accounts", createRequest{
		Name: name, Password: password, Balance: money.Format(balance),
	}, nil)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, accountPath(name), nil, nil)
}

func (c *Client) SetBalance(ctx context.Context, name string, amount decimal.Decimal) error {
	return c.do(ctx, http.MethodPut, accountPath(name, "/balance"), balanceRequest{Amount: money.Format(amount)}, nil)
}

func (c *Client) Lock(ctx context.Context, name, reason string) error {
	return c.do(ctx, http.MethodPost, accountPath(name, "/lock"), lockRequest{Reason: reason}, nil)
}

func (c *Client) Unlock(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodPost, accountPath(name, "/unlock"), nil, nil)
}

func (c *Client) ResetCredential(ctx context.Context, name, password string) error {
	return c.do(ctx, http.MethodPost, accountPath(name, "/credential"), credentialRequest{Password: password}, nil)
}

func (c *Client) Relays(ctx context.Context) ([]Relay, error) {
	var out struct {
		Relays []Relay `json:"relays"`
	}
	if err := c.do(ctx, http.MethodGet, "/admin/relays", nil, &out); err != nil {
		return nil, err
	}
	return out.Relays, nil
}
