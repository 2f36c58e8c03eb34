package nesenv

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/meadori/vibemulator/api"

	"github.com/meadori/vibetrain/internal/emuclient"
)

type fakeStream struct {
	mu     sync.Mutex
	sent   []*api.InputState
	closed bool
	err    error
}

func (f *fakeStream) Send(in *api.InputState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.sent = append(f.sent, in)
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *fakeStream) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed
}

func (f *fakeStream) snapshot() []*api.InputState {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*api.InputState(nil), f.sent...)
}

func (f *fakeStream) last() *api.InputState {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type fakeClient struct {
	mu         sync.Mutex
	frame      []byte
	frameErr   error
	frameCalls int
	mem        map[uint16]byte
	memErr     error
	resetErr   error
	resets     int
	loads      []string
	stream     *fakeStream
}

var _ emuclient.ControlClient = (*fakeClient)(nil)

func (f *fakeClient) Frame(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frameCalls++
	if f.frameErr != nil {
		return nil, f.frameErr
	}
	return f.frame, nil
}

func (f *fakeClient) ReadMemory(_ context.Context, addr uint16) (byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.memErr != nil {
		return 0, f.memErr
	}
	return f.mem[addr], nil
}

func (f *fakeClient) ResetSystem(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.resets++
	return f.resetErr
}

func (f *fakeClient) LoadState(_ context.Context, filename string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loads = append(f.loads, filename)
	return nil
}

func (f *fakeClient) StreamInput(context.Context) (emuclient.InputStream, error) {
	return f.stream, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// validFrame builds a well-formed RGBA payload filled with v in the color
// channels and opaque alpha.
func validFrame(v byte) []byte {
	raw := make([]byte, rawFrameLen)
	for i := 0; i < len(raw); i += 4 {
		raw[i] = v
		raw[i+1] = v
		raw[i+2] = v
		raw[i+3] = 0xFF
	}
	return raw
}
