package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"mining-economy/internal/config"

	"github.com/valyala/fasthttp"
)

// WebhookClient posts JSON events to an operator supplied URL.
type WebhookClient struct {
	url    string
	client *fasthttp.Client
}

func NewWebhookClient(cfg *config.Config) *WebhookClient {
	return &WebhookClient{
		url: cfg.NotifyWebhookURL,
		client: &fasthttp.Client{
			MaxConnsPerHost:     20,
			ReadTimeout:         5 * time.Second,
			WriteTimeout:        5 * time.Second,
			MaxIdleConnDuration: 1 * time.Minute,
		},
	}
}

func (c *WebhookClient) Enabled() bool {
	return c != nil && c.url != ""
}

// Post sends body as JSON and expects a 2xx answer.
func (c *WebhookClient) Post(ctx context.Context, body any) error {
	return doPost(ctx, c.client, c.url, body)
}

func doPost(ctx context.Context, client *fasthttp.Client, url string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode webhook body: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if ok {
		if err := client.DoDeadline(req, resp, deadline); err != nil {
			return err
		}
	} else {
		if err := client.Do(req, resp); err != nil {
			return err
		}
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		return fmt.Errorf("webhook error: %d", code)
	}
	return nil
}
