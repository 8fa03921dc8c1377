// Package tempo is a Go client for the tempo outcome stream.
package tempo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"tempo/internal/api"
)

// Outcome is one tick outcome as seen by a stream client.
type Outcome struct {
	Action          string
	Strategy        string
	Symbol          string
	Exchange        string
	When            time.Time
	Price           float64
	SignalID        string
	Position        string
	PriceOpen       float64
	PriceTakeProfit float64
	PriceStopLoss   float64
	Reason          string
	PnLPercent      float64
}

// Filter restricts a stream to one strategy and/or symbol. Empty fields match
// everything.
type Filter struct {
	Strategy string
	Symbol   string
}

// Client streams outcomes from a tempo server.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient creates a client for addr. Without options the connection uses
// insecure transport credentials.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Watch streams outcomes matching f into fn. It blocks until ctx is cancelled,
// the server ends the stream, or fn returns an error.
func (c *Client) Watch(ctx context.Context, f Filter, fn func(Outcome) error) error {
	req, err := structpb.NewStruct(map[string]any{"strategy": f.Strategy, "symbol": f.Symbol})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cs, err := c.conn.NewStream(ctx, &api.OutcomesServiceDesc.Streams[0], api.StreamMethod)
	if err != nil {
		return fmt.Errorf("starting stream: %w", err)
	}
	stream := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: cs}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("closing send: %w", err)
	}

	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("receiving outcome: %w", err)
		}
		if err := fn(decode(msg)); err != nil {
			return err
		}
	}
}

func decode(msg *structpb.Struct) Outcome {
	f := msg.GetFields()
	when, _ := time.Parse(time.RFC3339Nano, f["when"].GetStringValue())
	return Outcome{
		Action:          f["action"].GetStringValue(),
		Strategy:        f["strategy"].GetStringValue(),
		Symbol:          f["symbol"].GetStringValue(),
		Exchange:        f["exchange"].GetStringValue(),
		When:            when,
		Price:           f["price"].GetNumberValue(),
		SignalID:        f["signal_id"].GetStringValue(),
		Position:        f["position"].GetStringValue(),
		PriceOpen:       f["price_open"].GetNumberValue(),
		PriceTakeProfit: f["price_take_profit"].GetNumberValue(),
		PriceStopLoss:   f["price_stop_loss"].GetNumberValue(),
		Reason:          f["reason"].GetStringValue(),
		PnLPercent:      f["pnl_percent"].GetNumberValue(),
	}
}
