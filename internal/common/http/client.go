package http

import (
	"net/http"
	"time"
)

// Client is the outbound HTTP client for the chat platform API. Its
// timeout must exceed the long-poll timeout.
type Client struct {
	httpClient *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ClientTimeout returns a client timeout that leaves room for a long poll
// of pollSeconds.
func ClientTimeout(pollSeconds int) time.Duration {
	return time.Duration(pollSeconds)*time.Second + 10*time.Second
}

func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}
