package nesenv

import (
	"context"
	"log/slog"

	"gorgonia.org/tensor"

	"github.com/meadori/vibetrain/internal/emuclient"
)

// Frame geometry of the NES PPU output.
const (
	FrameWidth  = 256
	FrameHeight = 240

	frameChannels = 3
	rawFrameLen   = FrameWidth * FrameHeight * 4 // RGBA as sent by the emulator
)

// Observation is an RGB pixel grid with shape (FrameHeight, FrameWidth, 3)
// and values 0-255.
type Observation = *tensor.Dense

// frameFetcher pulls the latest rendered frame and converts it to an RGB
// observation. A transport failure or malformed payload yields a blank frame
// instead of an error: one bad frame must not kill a long training run.
type frameFetcher struct {
	client    emuclient.ControlClient
	logger    *slog.Logger
	fallbacks int
}

func (f *frameFetcher) fetch(ctx context.Context) Observation {
	raw, err := f.client.Frame(ctx)
	if err != nil {
		f.fallbacks++
		f.logger.Warn("substituting blank frame: " + err.Error())
		return blankObservation()
	}

	if len(raw) != rawFrameLen {
		f.fallbacks++
		f.logger.Warn("substituting blank frame: bad payload length", slog.Int("len", len(raw)))
		return blankObservation()
	}

	pix := make([]uint8, FrameHeight*FrameWidth*frameChannels)
	for i, j := 0, 0; i < rawFrameLen; i, j = i+4, j+3 {
		pix[j] = raw[i]
		pix[j+1] = raw[i+1]
		pix[j+2] = raw[i+2]
	}

	return tensor.New(tensor.WithShape(FrameHeight, FrameWidth, frameChannels), tensor.WithBacking(pix))
}

func blankObservation() Observation {
	return tensor.New(tensor.Of(tensor.Uint8), tensor.WithShape(FrameHeight, FrameWidth, frameChannels))
}
