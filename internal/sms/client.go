// Package sms предоставляет клиент вебхука доставки SMS.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitedError возвращается, если провайдер ответил 429.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("sms provider rate limited, retry after %s", e.RetryAfter)
}

// Client выполняет HTTP-запросы к вебхуку SMS.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type message struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Receipt содержит ответ провайдера на принятое сообщение.
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NewClient создаёт клиент вебхука. Пустой baseURL отключает отправку.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Enabled сообщает, настроен ли вебхук.
func (c *Client) Enabled() bool {
	return c != nil && c.baseURL != ""
}

// Send отправляет одно текстовое сообщение.
func (c *Client) Send(ctx context.Context, to, body string) (*Receipt, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("sms client not configured")
	}

	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	payload, err := json.Marshal(message{To: to, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := time.Duration(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if seconds, parseErr := strconv.Atoi(v); parseErr == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return nil, &RateLimitedError{RetryAfter: retryAfter}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if resp.StatusCode == http.StatusNoContent {
		return &Receipt{Status: "accepted"}, nil
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &receipt, nil
}
