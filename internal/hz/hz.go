package hz

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Hz is a tick frequency in whole ticks per second.
type Hz int

func (h *Hz) UnmarshalText(text []byte) error {
	text = bytes.TrimSuffix(bytes.ToLower(text), []byte("hz"))

	n, err := strconv.Atoi(string(text))
	if err != nil {
		return fmt.Errorf("rate must be an integer, optionally with hz suffix")
	}

	if n <= 0 {
		return fmt.Errorf("rate must be positive")
	}

	if n > 1000 {
		return fmt.Errorf("rate must be at most 1000")
	}

	*h = Hz(n)
	return nil
}

// Interval is the duration of a single tick.
func (h Hz) Interval() time.Duration {
	return time.Second / time.Duration(h)
}

func (h Hz) String() string {
	return strconv.Itoa(int(h)) + "hz"
}
