package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Harardin/nft-custody/pkg/log"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type Config struct {
	URL     string        `json:"NOTIFY_URL"`
	Token   string        `json:"NOTIFY_TOKEN" secret:"true"`
	Timeout time.Duration `json:"NOTIFY_TIMEOUT" default:"5s"`
}

type Service struct {
	url   string
	token string
	cli   *http.Client
	l     log.Logger
}

// NewNotifyService creates webhook client posting json payloads to url
func NewNotifyService(c Config, l log.Logger) *Service {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Service{
		url:   c.URL,
		token: c.Token,
		cli:   &http.Client{Timeout: timeout},
		l:     l,
	}
}

// Send posts payload as json, any non 2xx response is an error
func (s *Service) Send(ctx context.Context, payload any) ([]byte, error) {
	msg, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(msg))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create notification request")
	}

	req.Header.Set("Content-type", "application/json")
	if s.token != "" {
		req.Header.Set("X-API-TOKEN", s.token)
	}

	resp, err := s.cli.Do(req)
	if err != nil {
		s.l.Error("failed to make request to notification service", err)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read notify service response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("notify service responded with status %d", resp.StatusCode)
	}

	return body, nil
}
