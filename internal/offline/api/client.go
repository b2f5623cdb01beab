// Package api is the terminal's HTTP client for the order engine. It maps
// queued actions onto engine endpoints and classifies failures so the sync
// coordinator can tell "try again later" from "the server said no".
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mmazune/chefcloud/internal/enum"
	"github.com/mmazune/chefcloud/internal/offline/queue"
	"github.com/pkg/errors"
)

var (
	// ErrUnavailable covers network failures and 5xx responses. The action
	// stays queued and is retried on the next sync pass.
	ErrUnavailable = errors.New("server unavailable")

	// ErrConflict is a 409: the server state moved on and the action no
	// longer applies.
	ErrConflict = errors.New("action conflicts with server state")

	// ErrRejected covers the remaining 4xx responses: the server understood
	// the action and refused it. Retrying verbatim will not help.
	ErrRejected = errors.New("action rejected by server")
)

// Client talks to one order engine on behalf of one terminal.
type Client struct {
	rest *resty.Client
}

// New builds a client for the engine at baseURL.
func New(baseURL string, timeout time.Duration) *Client {
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Client{rest: rest}
}

type loginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// PinLogin authenticates with a venue-scoped PIN and installs the session
// token on the client.
func (c *Client) PinLogin(ctx context.Context, venueID, pin string) error {
	var out loginResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(map[string]string{"venue_id": venueID, "pin": pin}).
		SetResult(&out).
		Post("/auth/pin-login")
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	if resp.IsError() {
		return errors.Wrapf(classify(resp.StatusCode()), "pin login: %s", resp.String())
	}
	c.rest.SetAuthToken(out.Token)
	return nil
}

// SetToken installs an existing session token, bypassing login.
func (c *Client) SetToken(token string) {
	c.rest.SetAuthToken(token)
}

// Execute replays one queued action against the engine. The action's key is
// sent as the idempotency key, so re-executing after a lost response is safe.
func (c *Client) Execute(ctx context.Context, a queue.Action) error {
	method, path, err := route(a)
	if err != nil {
		return err
	}

	resp, err := c.rest.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", a.Key).
		SetBody(json.RawMessage(a.Payload)).
		Execute(method, path)
	if err != nil {
		return errors.Wrap(ErrUnavailable, err.Error())
	}
	if resp.IsError() {
		return errors.Wrapf(classify(resp.StatusCode()), "%s %s: %s", method, path, resp.String())
	}
	return nil
}

type orderStatusResponse struct {
	Status string `json:"status"`
}

// OrderStatus fetches the current server-side status of an order.
func (c *Client) OrderStatus(ctx context.Context, venueID, orderID string) (string, error) {
	var out orderStatusResponse
	resp, err := c.rest.R().
		SetContext(ctx).
		SetResult(&out).
		Get(fmt.Sprintf("/venues/%s/orders/%s", venueID, orderID))
	if err != nil {
		return "", errors.Wrap(ErrUnavailable, err.Error())
	}
	if resp.IsError() {
		return "", errors.Wrapf(classify(resp.StatusCode()), "get order %s", orderID)
	}
	return out.Status, nil
}

// route maps an action kind to its engine endpoint. Mutations on an existing
// order require the server order ID in OrderRef.
func route(a queue.Action) (method, path string, err error) {
	base := fmt.Sprintf("/venues/%s/orders", a.VenueID)

	if a.Kind == enum.ActionKindCreateOrder {
		return resty.MethodPost, base, nil
	}

	if !a.OrderRef.Valid || a.OrderRef.String == "" {
		return "", "", errors.Wrapf(ErrRejected, "action %d (%s) has no order reference", a.ID, a.Kind)
	}
	orderPath := fmt.Sprintf("%s/%s", base, a.OrderRef.String)

	switch a.Kind {
	case enum.ActionKindAddItems:
		return resty.MethodPost, orderPath + "/items", nil
	case enum.ActionKindUpdateItems:
		return resty.MethodPatch, orderPath + "/items", nil
	case enum.ActionKindApplyDiscount:
		return resty.MethodPost, orderPath + "/discount", nil
	case enum.ActionKindSendToKitchen, enum.ActionKindPay, enum.ActionKindVoid:
		return resty.MethodPost, orderPath + "/transition", nil
	}
	return "", "", errors.Wrapf(ErrRejected, "unknown action kind %q", a.Kind)
}

func classify(status int) error {
	switch {
	case status >= 500:
		return ErrUnavailable
	case status == 409:
		return ErrConflict
	default:
		return ErrRejected
	}
}
