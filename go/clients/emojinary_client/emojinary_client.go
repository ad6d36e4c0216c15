package emojinary_client

import (
	"context"
	"time"

	"github.com/AvaxArrogant/Emojinary-sub000/go/clients"
)

// EmojinaryClient talks to the Emojinary authority over plain HTTP
// request/response calls. Every failure comes back as a classified
// *clients.APIError so the sync layer can map it to a retry decision.
type EmojinaryClient struct {
	*clients.BaseClient
}

func NewEmojinaryClient(baseURL string) *EmojinaryClient {
	client := &EmojinaryClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	client.SetHeader(jsonHeader, jsonContentType)

	return client
}

// Ping issues a lightweight reachability probe and returns the measured
// round-trip latency. Used by the connection monitor on its own cadence.
func (c *EmojinaryClient) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.Get(ctx, healthPath); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
