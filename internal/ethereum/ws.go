package ethereum

import "context"

// WSClient defines the Ethereum WebSocket subscription interface.
type WSClient interface {
	// SubscribeLogs subscribes to log events matching the filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogEvent, error)

	// Close closes the WebSocket connection.
	Close() error
}

// LogsFilter defines an eth_subscribe logs filter.
type LogsFilter struct {
	// Addresses restricts events to these contract or account addresses.
	Addresses []string
	// Topics restricts events to these topic hashes.
	Topics []string
}

// LogEvent is one logs subscription notification.
type LogEvent struct {
	Address         string
	Topics          []string
	Data            string
	BlockNumber     uint64
	TransactionHash string
	Removed         bool
}
