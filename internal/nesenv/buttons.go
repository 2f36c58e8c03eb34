package nesenv

import (
	"fmt"

	"github.com/meadori/vibemulator/api"
)

// Buttons is the state of the eight NES controller buttons for one player.
type Buttons struct {
	Player int

	A, B, Select, Start   bool
	Up, Down, Left, Right bool
}

// Bit positions in the packed representation, matching the wire order used by
// the emulator's input protocol.
const (
	bitA = 1 << iota
	bitB
	bitSelect
	bitStart
	bitUp
	bitDown
	bitLeft
	bitRight
)

// Pack returns the button set as a bitmask in [0,256).
func (b Buttons) Pack() int {
	var n int
	for i, pressed := range [8]bool{b.A, b.B, b.Select, b.Start, b.Up, b.Down, b.Left, b.Right} {
		if pressed {
			n |= 1 << i
		}
	}
	return n
}

func (b Buttons) proto() *api.InputState {
	player := b.Player
	if player == 0 {
		player = 1
	}

	return &api.InputState{
		PlayerIndex: int32(player),
		A:           b.A,
		B:           b.B,
		Select:      b.Select,
		Start:       b.Start,
		Up:          b.Up,
		Down:        b.Down,
		Left:        b.Left,
		Right:       b.Right,
	}
}

// ActionSpace maps discrete action integers onto controller button states.
// Decode is a pure function of its input; an out-of-range action is a caller
// bug and is rejected rather than decoded into garbage.
type ActionSpace interface {
	Size() int
	Decode(action int) (Buttons, error)
}

// Bitmask is the full 256-way action space: one bit per button, no game
// knowledge required.
type Bitmask struct {
	Player int
}

func (Bitmask) Size() int { return 256 }

func (s Bitmask) Decode(action int) (Buttons, error) {
	if action < 0 || action >= s.Size() {
		return Buttons{}, fmt.Errorf("action %d outside bitmask space [0,%d)", action, s.Size())
	}

	return Buttons{
		Player: s.Player,
		A:      action&bitA != 0,
		B:      action&bitB != 0,
		Select: action&bitSelect != 0,
		Start:  action&bitStart != 0,
		Up:     action&bitUp != 0,
		Down:   action&bitDown != 0,
		Left:   action&bitLeft != 0,
		Right:  action&bitRight != 0,
	}, nil
}

// Combos is a curated eight-way action space for side-scrolling platformers:
// NOOP, Right, Right+A, Right+B, Right+A+B, Left, A, B.
type Combos struct {
	Player int
}

var comboTable = [8]Buttons{
	{},
	{Right: true},
	{Right: true, A: true},
	{Right: true, B: true},
	{Right: true, A: true, B: true},
	{Left: true},
	{A: true},
	{B: true},
}

func (Combos) Size() int { return len(comboTable) }

func (s Combos) Decode(action int) (Buttons, error) {
	if action < 0 || action >= s.Size() {
		return Buttons{}, fmt.Errorf("action %d outside combo space [0,%d)", action, s.Size())
	}

	b := comboTable[action]
	b.Player = s.Player
	return b, nil
}
