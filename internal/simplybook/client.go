package simplybook

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/punchamoorthee/invoicesync/internal/config"
	ierr "github.com/punchamoorthee/invoicesync/internal/errors"
	"github.com/punchamoorthee/invoicesync/internal/logger"
)

const (
	headerCompany = "X-Company-Login"
	headerToken   = "X-User-Token"

	methodGetUserToken      = "getUserToken"
	methodGetBookingDetails = "getBookingDetails"
	methodGetClientInfo     = "getClientInfo"
)

// Client calls the provider's admin API on behalf of one company account.
type Client struct {
	rpc      *rpcClient
	loginURL string
	adminURL string
	company  string
}

// NewClient builds a provider client from cfg. Requests are logged at debug level through l.
func NewClient(cfg config.SimplyBookConfig, l zerolog.Logger) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		rpc:      newRPCClient(cfg.Timeout, cfg.RetryMax, logger.RetryableLogger{L: l}),
		loginURL: base + "/login",
		adminURL: base + "/admin",
		company:  cfg.Company,
	}
}

func (c *Client) authHeaders(token string) map[string]string {
	return map[string]string{
		headerCompany: c.company,
		headerToken:   token,
	}
}

// FetchBookingDetail returns the full record of a booking or batch sub-booking.
func (c *Client) FetchBookingDetail(ctx context.Context, token, bookingID string) (*BookingDetail, error) {
	var detail BookingDetail
	err := c.rpc.call(ctx, c.adminURL, methodGetBookingDetails, []any{bookingID}, c.authHeaders(token), &detail)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("booking %s", bookingID).
			WithHint("Could not load booking details from the scheduling provider").
			Mark(ierr.ErrUpstreamData)
	}
	return &detail, nil
}

// FetchClientInfo returns the profile of a client.
func (c *Client) FetchClientInfo(ctx context.Context, token, clientID string) (*ClientInfo, error) {
	var info ClientInfo
	err := c.rpc.call(ctx, c.adminURL, methodGetClientInfo, []any{clientID}, c.authHeaders(token), &info)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessagef("client %s", clientID).
			WithHint("Could not load client information from the scheduling provider").
			Mark(ierr.ErrUpstreamData)
	}
	return &info, nil
}
