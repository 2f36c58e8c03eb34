package stubemu_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/meadori/vibemulator/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/meadori/vibetrain/internal/emuclient"
	"github.com/meadori/vibetrain/internal/nesenv"
	"github.com/meadori/vibetrain/internal/reward"
	"github.com/meadori/vibetrain/internal/stubemu"
)

func startStub(t *testing.T) (*stubemu.Server, *emuclient.Client) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	stub := stubemu.New()
	api.RegisterControllerServiceServer(srv, stub)

	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	client := emuclient.NewFromConn(conn)
	t.Cleanup(func() { client.Close() })

	return stub, client
}

func TestUnaryCallsOverBufconn(t *testing.T) {
	stub, client := startStub(t)
	ctx := context.Background()

	raw, err := client.Frame(ctx)
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if len(raw) != 256*240*4 {
		t.Fatalf("expected full RGBA payload, got %d bytes", len(raw))
	}

	stub.SetRAM(reward.AddrPlayerState, 0x0B)
	v, err := client.ReadMemory(ctx, reward.AddrPlayerState)
	if err != nil {
		t.Fatalf("read memory: %v", err)
	}
	if v != 0x0B {
		t.Fatalf("expected 0x0B, got 0x%02X", v)
	}

	if err := client.ResetSystem(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if stub.Resets() != 1 {
		t.Fatalf("expected 1 reset, got %d", stub.Resets())
	}

	if err := client.LoadState(ctx, "mario.sav"); err != nil {
		t.Fatalf("load state: %v", err)
	}
	if got := stub.Loads(); len(got) != 1 || got[0] != "mario.sav" {
		t.Fatalf("expected load of mario.sav, got %v", got)
	}
}

func TestEnvironmentAgainstStub(t *testing.T) {
	stub, client := startStub(t)
	ctx := context.Background()

	env, err := nesenv.New(ctx, client, nesenv.Config{
		Actions:   nesenv.Combos{},
		FrameRate: 1000,
		InputRate: 1000,
	})
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	defer env.Close()

	obs, _, err := env.Reset(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := obs.Shape(); got[0] != nesenv.FrameHeight || got[1] != nesenv.FrameWidth || got[2] != 3 {
		t.Fatalf("unexpected shape %v", got)
	}

	step, err := env.Step(ctx, 2) // Right+A
	if err != nil {
		t.Fatalf("step: %v", err)
	}

	// the stub pattern scrolls every frame, so pixel delta must be nonzero
	if step.Reward <= 0 {
		t.Fatalf("expected positive pixel-delta reward, got %v", step.Reward)
	}
	if step.Done || step.Truncated {
		t.Fatalf("unexpected termination: %+v", step)
	}
	if got := step.Info["fallback_frames"]; got != 0 {
		t.Fatalf("expected no fallbacks against live stub, got %v", got)
	}

	// the held action travels the real stream to the stub
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p1 := stub.P1()
		if p1[0] && p1[7] { // A and Right
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("held action never reached the stub")
}
