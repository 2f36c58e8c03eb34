package emuclient

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meadori/vibemulator/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ControlClient is the slice of the emulator control service the environment
// layer depends on. *Client implements it over gRPC; tests substitute fakes.
type ControlClient interface {
	Frame(ctx context.Context) ([]byte, error)
	ReadMemory(ctx context.Context, addr uint16) (byte, error)
	ResetSystem(ctx context.Context) error
	LoadState(ctx context.Context, filename string) error
	StreamInput(ctx context.Context) (InputStream, error)
}

// InputStream is the send half of the duplex controller-input stream. The
// emulator's acks carry no information and are never read.
type InputStream interface {
	Send(*api.InputState) error
	CloseSend() error
}

const defaultCallTimeout = 2 * time.Second

// Client wraps the generated ControllerService stub. Every unary call gets a
// deadline so a hung emulator stalls a single step instead of the whole run.
type Client struct {
	conn    *grpc.ClientConn
	rpc     api.ControllerServiceClient
	timeout time.Duration
	logger  *slog.Logger
}

type Option func(*Client)

// WithCallTimeout overrides the per-call deadline for unary RPCs. Zero
// disables the deadline entirely.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Dial connects to the emulator control service. The emulator only speaks
// plaintext on a local port, so no credentials are involved.
func Dial(target string, opts ...Option) (*Client, error) {
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial emulator at %s: %w", target, err)
	}

	c := NewFromConn(conn, opts...)
	c.logger.Debug("emulator control channel created", slog.String("target", target))

	return c, nil
}

// NewFromConn wraps an existing connection, e.g. one backed by bufconn in tests.
func NewFromConn(conn *grpc.ClientConn, opts ...Option) *Client {
	c := &Client{
		conn:    conn,
		rpc:     api.NewControllerServiceClient(conn),
		timeout: defaultCallTimeout,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, c.timeout)
}

// Frame returns the raw RGBA pixel payload of the most recently rendered frame.
func (c *Client) Frame(ctx context.Context) ([]byte, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	resp, err := c.rpc.GetFrame(ctx, &api.Empty{})
	if err != nil {
		return nil, fmt.Errorf("get frame: %w", err)
	}

	return resp.GetPixels(), nil
}

// ReadMemory returns a single byte of console RAM.
func (c *Client) ReadMemory(ctx context.Context, addr uint16) (byte, error) {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	resp, err := c.rpc.ReadMemory(ctx, &api.MemoryRequest{Address: uint32(addr)})
	if err != nil {
		return 0, fmt.Errorf("read memory 0x%04X: %w", addr, err)
	}

	return byte(resp.GetData()), nil
}

// ResetSystem performs a hardware reset, returning the console to the title screen.
func (c *Client) ResetSystem(ctx context.Context) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	if _, err := c.rpc.ResetSystem(ctx, &api.Empty{}); err != nil {
		return fmt.Errorf("reset system: %w", err)
	}

	return nil
}

// LoadState asks the emulator to load a save-state file from its own filesystem.
func (c *Client) LoadState(ctx context.Context, filename string) error {
	ctx, cancel := c.withDeadline(ctx)
	defer cancel()

	if _, err := c.rpc.LoadState(ctx, &api.StateRequest{Filename: filename}); err != nil {
		return fmt.Errorf("load state %s: %w", filename, err)
	}

	return nil
}

// StreamInput opens the long-lived controller-input stream. No deadline: the
// stream outlives any single step and is closed through ctx or CloseSend.
func (c *Client) StreamInput(ctx context.Context) (InputStream, error) {
	stream, err := c.rpc.StreamInput(ctx)
	if err != nil {
		return nil, fmt.Errorf("open input stream: %w", err)
	}

	return stream, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
