package appium

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/GriffinCanCode/readerfleet/internal/infrastructure/resilience"
)

// Config configures the Appium client
type Config struct {
	Host        string
	Scheme      string
	AppPackage  string
	AppActivity string
	Timeout     time.Duration
	Retries     int
}

// DefaultConfig returns local-server defaults
func DefaultConfig() Config {
	return Config{
		Host:        "127.0.0.1",
		Scheme:      "http",
		AppPackage:  "com.amazon.kindle",
		AppActivity: "com.amazon.kindle.UpgradePage",
		Timeout:     30 * time.Second,
		Retries:     2,
	}
}

// client wraps resty with a circuit breaker per Appium server
type client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
}

func newClient(baseURL string, cfg Config) *client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 0
	retryClient.Logger = nil

	r := resty.New()
	r.SetBaseURL(baseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "readerfleet/1.0").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	r.SetTransport(retryClient.HTTPClient.Transport)

	// only reads are safe to repeat; a retried tap could land twice
	r.AddRetryCondition(func(resp *resty.Response, err error) bool {
		if resp == nil || resp.Request == nil || resp.Request.Method != http.MethodGet {
			return false
		}
		return err != nil || resp.StatusCode() >= http.StatusInternalServerError
	})

	breaker := resilience.New("appium:"+baseURL, resilience.Settings{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a missing element is a UI miss, not a sick server
		IsSuccessful: func(err error) bool {
			return err == nil || isUIMiss(err)
		},
	})

	return &client{resty: r, breaker: breaker}
}

// do sends one command and returns the raw response body. Protocol
// errors come back classified.
func (c *client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	return resilience.Call(c.breaker, func() ([]byte, error) {
		req := c.resty.R().SetContext(ctx)
		if body != nil {
			req.SetBody(body)
		}
		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, classifyTransport(err)
		}
		if resp.IsError() {
			return nil, classifyResponse(resp.StatusCode(), resp.Body())
		}
		return resp.Body(), nil
	})
}

func (c *client) get(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

func (c *client) post(ctx context.Context, path string, body interface{}) ([]byte, error) {
	if body == nil {
		body = map[string]interface{}{}
	}
	return c.do(ctx, http.MethodPost, path, body)
}

func (c *client) delete(ctx context.Context, path string) error {
	_, err := c.do(ctx, http.MethodDelete, path, nil)
	return err
}

func baseURL(cfg Config, port int) string {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, port)
}
