// Package platformtest provides an in-memory fake of platform.ClientAPI for
// unit tests that exercise C5/C6/C7 without making real HTTP calls.
package platformtest

import (
	"context"
	"time"
)

// Client is a scriptable fake. ConfirmErr/SetInventoryErr let a test force a
// specific call to fail; Confirmed/Pushed record what was called for
// assertions.
type Client struct {
	SearchResult []string
	SearchErr    error
	Orders       []map[string]any
	GetOrdersErr error
	ConfirmErr   error
	SetInvErr    error

	Confirmed []string
	Pushed    map[string]int // platformSku -> quantity, last write wins
}

func New() *Client {
	return &Client{Pushed: map[string]int{}}
}

func (c *Client) SearchOrders(ctx context.Context, start, end time.Time, statuses []int) ([]string, error) {
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	return c.SearchResult, nil
}

func (c *Client) GetOrders(ctx context.Context, orderNumbers []string) ([]map[string]any, error) {
	if c.GetOrdersErr != nil {
		return nil, c.GetOrdersErr
	}
	return c.Orders, nil
}

func (c *Client) ConfirmOrder(ctx context.Context, orderNumber string) error {
	if c.ConfirmErr != nil {
		return c.ConfirmErr
	}
	c.Confirmed = append(c.Confirmed, orderNumber)
	return nil
}

func (c *Client) SetInventory(ctx context.Context, platformSku string, quantity int) error {
	if c.SetInvErr != nil {
		return c.SetInvErr
	}
	if c.Pushed == nil {
		c.Pushed = map[string]int{}
	}
	c.Pushed[platformSku] = quantity
	return nil
}

func (c *Client) ListInventoryRange(ctx context.Context, min, max int) ([]map[string]any, error) {
	return nil, nil
}

func (c *Client) GetItem(ctx context.Context, manageNumber string) (map[string]any, error) {
	return nil, nil
}

func (c *Client) TestAuth(ctx context.Context) (bool, error) {
	return true, nil
}
