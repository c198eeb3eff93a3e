package channel

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/docbroker/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a session-side attachment to the command channel. Send pushes
// command lines to the broker; Recv blocks for the next notification.
type Client struct {
	conn   *grpc.ClientConn
	stream grpc.ClientStream
}

// Dial connects to the broker endpoint. The stream itself is opened by
// Attach.
func Dial(endpoint string) (*Client, error) {
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Attach opens the bidirectional stream for docKey. The key rides in the
// stream metadata so the server can route without a handshake message.
func (c *Client) Attach(ctx context.Context, docKey string) error {
	ctx = metadata.AppendToOutgoingContext(ctx, common.DocKeyHeaderName, docKey)
	stream, err := c.conn.NewStream(ctx, &sessionChannelServiceDesc.Streams[0], attachMethodName)
	if err != nil {
		return err
	}
	c.stream = stream
	return nil
}

func (c *Client) Send(command string) error {
	if c.stream == nil {
		return errors.New("not attached")
	}
	return c.stream.SendMsg(wrapperspb.String(command))
}

func (c *Client) Recv() (string, error) {
	if c.stream == nil {
		return "", errors.New("not attached")
	}
	msg := &wrapperspb.StringValue{}
	if err := c.stream.RecvMsg(msg); err != nil {
		return "", err
	}
	return msg.GetValue(), nil
}

// CloseSend signals that no more commands follow; the server sees io.EOF.
func (c *Client) CloseSend() error {
	if c.stream == nil {
		return nil
	}
	return c.stream.CloseSend()
}

func (c *Client) Close() error {
	if c.stream != nil {
		if err := c.stream.CloseSend(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return c.conn.Close()
}
