package connectivity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrUnreachable reports a failed reachability check.
var ErrUnreachable = errors.New("network unreachable")

// Probe answers whether the network is reachable right now. Results are never cached.
type Probe struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewProbe returns a probe that sends one HEAD request to url per check.
func NewProbe(url string, timeout time.Duration, logger *zap.Logger) *Probe {
	return &Probe{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger: logger.Named("connectivity"),
	}
}

// IsOnline reports true only when the endpoint answers with a 2xx status.
func (p *Probe) IsOnline(ctx context.Context) bool {
	if err := p.Check(ctx); err != nil {
		p.logger.Info("offline", zap.Error(err))
		return false
	}
	return true
}

// Check performs the reachability request and returns the failure, if any.
func (p *Probe) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", ErrUnreachable, p.url, resp.StatusCode)
	}
	return nil
}
