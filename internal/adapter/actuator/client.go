// Package actuator talks to the lock controller's HTTP API. Each Open is a
// single POST bounded by a timeout; there is no retry.
package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/app/client/retry"
	errs "github.com/cloudwego/hertz/pkg/common/errors"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

const (
	DefaultTimeout = 3 * time.Second
	openLockPath   = "/zones/open-lock"
)

type Settings struct {
	BaseURL string
	Token   string
	ZoneID  int
}

type openLockRequest struct {
	ZoneID     int `json:"zoneId"`
	LockNumber int `json:"lockNumber"`
}

type Client struct {
	hc       *client.Client
	timeout  time.Duration
	settings atomic.Pointer[Settings]
}

func NewClient(settings Settings, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc, err := client.NewClient(
		client.WithDialTimeout(timeout),
		client.WithClientReadTimeout(timeout),
		client.WithWriteTimeout(timeout),
		client.WithRetryConfig(retry.WithMaxAttemptTimes(1)),
	)
	if err != nil {
		return nil, fmt.Errorf("new actuator client: %w", err)
	}
	c := &Client{hc: hc, timeout: timeout}
	c.Update(settings)
	return c, nil
}

// Update swaps the endpoint settings used by subsequent calls.
func (c *Client) Update(settings Settings) {
	settings.BaseURL = strings.TrimRight(strings.TrimSpace(settings.BaseURL), "/")
	c.settings.Store(&settings)
}

func (c *Client) Settings() Settings {
	return *c.settings.Load()
}

func (c *Client) Open(ctx context.Context, n locker.Number) error {
	s := c.Settings()
	body, err := json.Marshal(openLockRequest{ZoneID: s.ZoneID, LockNumber: int(n)})
	if err != nil {
		return err
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(s.BaseURL + openLockPath)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Authorization", "Bearer "+s.Token)
	req.SetBody(body)

	if err := c.hc.DoTimeout(ctx, req, resp, c.timeout); err != nil {
		return classify(err)
	}
	switch code := resp.StatusCode(); code {
	case consts.StatusOK, consts.StatusCreated:
		return nil
	default:
		return &ports.ActuatorRejectedError{StatusCode: code}
	}
}

func classify(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %v", ports.ErrActuatorTimeout, err)
	}
	return fmt.Errorf("%w: %v", ports.ErrActuatorUnreachable, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, errs.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
