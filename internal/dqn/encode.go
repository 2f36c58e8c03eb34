package dqn

// encodeObs converts a raw (H,W,C) uint8 frame into the network's (C,H,W)
// float32 layout, scaled to [0,1].
func encodeObs(pix []uint8) []float32 {
	out := make([]float32, len(pix))
	hw := frameH * frameW
	for i := 0; i < hw; i++ {
		base := i * frameC
		out[i] = float32(pix[base]) / 255
		out[hw+i] = float32(pix[base+1]) / 255
		out[2*hw+i] = float32(pix[base+2]) / 255
	}
	return out
}

func argmax(xs []float32) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}
