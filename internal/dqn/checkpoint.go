package dqn

import (
	"encoding/gob"
	"fmt"
	"os"

	"gorgonia.org/tensor"
)

// Save writes the policy weights to path. *tensor.Dense gob-encodes itself,
// so the checkpoint is just the parameter tensors in layer order.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	for _, w := range m.policy.weights() {
		if err := enc.Encode(w); err != nil {
			return fmt.Errorf("encode checkpoint: %w", err)
		}
	}

	return nil
}

// Load restores policy weights from path, copying the data in place so the
// inference graph (which shares the tensors) sees them too, and resyncs the
// target network.
func (m *Model) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	dec := gob.NewDecoder(f)
	for _, w := range m.policy.weights() {
		var loaded tensor.Dense
		if err := dec.Decode(&loaded); err != nil {
			return fmt.Errorf("decode checkpoint: %w", err)
		}

		if !loaded.Shape().Eq(w.Shape()) {
			return fmt.Errorf("checkpoint shape %v does not match model shape %v", loaded.Shape(), w.Shape())
		}

		copy(w.Data().([]float32), loaded.Data().([]float32))
	}

	m.SyncTarget()
	return nil
}
