// Package stubemu is an in-process stand-in for the emulator's
// ControllerService, good enough to exercise the trainer without a console:
// it renders a scrolling synthetic pattern, exposes a fake RAM page, and
// records the controller inputs it receives.
package stubemu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/meadori/vibemulator/api"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const (
	frameWidth  = 256
	frameHeight = 240
)

type Server struct {
	api.UnimplementedControllerServiceServer

	mu     sync.Mutex
	tick   int
	ram    [0x800]byte
	p1     [8]bool
	resets int
	loads  []string
}

func New() *Server {
	return &Server{}
}

// GetFrame renders the synthetic pattern and advances it, so consecutive
// frames always differ (pixel-delta rewards stay nonzero).
func (s *Server) GetFrame(ctx context.Context, in *api.Empty) (*api.FrameResponse, error) {
	s.mu.Lock()
	tick := s.tick
	s.tick++
	s.mu.Unlock()

	pixels := make([]byte, frameWidth*frameHeight*4)
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			i := (y*frameWidth + x) * 4
			pixels[i] = byte(x + tick)
			pixels[i+1] = byte(y)
			pixels[i+2] = byte(x ^ y)
			pixels[i+3] = 0xFF
		}
	}

	return &api.FrameResponse{Pixels: pixels}, nil
}

func (s *Server) ReadMemory(ctx context.Context, in *api.MemoryRequest) (*api.MemoryResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &api.MemoryResponse{Data: uint32(s.ram[in.Address&0x7FF])}, nil
}

func (s *Server) ResetSystem(ctx context.Context, in *api.Empty) (*api.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resets++
	s.tick = 0

	return &api.Empty{}, nil
}

func (s *Server) LoadState(ctx context.Context, in *api.StateRequest) (*api.Empty, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loads = append(s.loads, in.Filename)

	return &api.Empty{}, nil
}

func (s *Server) StreamInput(stream grpc.BidiStreamingServer[api.InputState, api.Empty]) error {
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.p1 = [8]bool{req.A, req.B, req.Select, req.Start, req.Up, req.Down, req.Left, req.Right}
		s.mu.Unlock()
	}
}

// SetRAM pokes a byte into the fake RAM page.
func (s *Server) SetRAM(addr uint16, v byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ram[addr&0x7FF] = v
}

// P1 returns the most recently received player-1 button state.
func (s *Server) P1() [8]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.p1
}

// Resets returns how many ResetSystem calls the server has handled.
func (s *Server) Resets() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.resets
}

// Loads returns the save-state filenames requested so far.
func (s *Server) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.loads...)
}

// Run serves the stub on the given port until ctx is cancelled.
func Run(ctx context.Context, port int, logger *slog.Logger) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return fmt.Errorf("listen on :%d: %w", port, err)
	}

	srv := grpc.NewServer()
	api.RegisterControllerServiceServer(srv, New())

	logger.Info("stub emulator listening", slog.Int("port", port))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		srv.GracefulStop()
		return ctx.Err()
	})

	err = g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}
