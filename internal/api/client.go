package api

import (
	"fmt"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	ewsv1 "github.com/miradorstack/mirador-ews/internal/grpc/ewsv1"
)

// Client is an EarlyWarning client bound to its connection.
type Client struct {
	ewsv1.EarlyWarningClient
	conn *grpc.ClientConn
}

// Dial connects to an engine at target. Transport credentials default to
// insecure unless opts supply others.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}, opts...)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{EarlyWarningClient: ewsv1.NewEarlyWarningClient(conn), conn: conn}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
