package dqn

import (
	"fmt"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/meadori/vibetrain/internal/nesenv"
)

const (
	frameH = nesenv.FrameHeight
	frameW = nesenv.FrameWidth
	frameC = 3
)

func convOut(size, kernel, stride int) int {
	return (size-kernel)/stride + 1
}

// flatDim is the flattened size after the three conv layers.
func flatDim() int {
	h := convOut(convOut(convOut(frameH, 8, 4), 4, 2), 3, 1)
	w := convOut(convOut(convOut(frameW, 8, 4), 4, 2), 3, 1)
	return 64 * h * w
}

// qnet is one instantiation of the convolutional Q-network (Mnih et al. 2015
// shape: 8x8/4, 4x4/2, 3x3/1, FC 512, FC nActions), bound to a fixed batch
// size. Gorgonia graphs have static shapes, so the model keeps three
// instantiations: a training graph, a target-network graph, and a batch-1
// inference graph sharing the training graph's weight tensors.
type qnet struct {
	g      *G.ExprGraph
	in     *G.Node
	out    *G.Node
	params []*G.Node

	// training-only nodes
	actions *G.Node
	targets *G.Node
	cost    *G.Node

	vm G.VM
}

// weightValues are the canonical parameter tensors of a qnet, in layer order.
type weightValues []*tensor.Dense

func newQNet(batch, nActions int, training bool, shared weightValues) (*qnet, error) {
	g := G.NewGraph()

	n := &qnet{g: g}
	n.in = G.NewTensor(g, tensor.Float32, 4, G.WithShape(batch, frameC, frameH, frameW), G.WithName("obs"))

	names := []string{"conv1", "conv2", "conv3", "fc1", "fc2"}
	shapes := []tensor.Shape{
		{32, frameC, 8, 8},
		{64, 32, 4, 4},
		{64, 64, 3, 3},
		{flatDim(), 512},
		{512, nActions},
	}

	for i, shape := range shapes {
		var p *G.Node
		if shared != nil {
			if len(shape) == 4 {
				p = G.NewTensor(g, tensor.Float32, 4, G.WithName(names[i]), G.WithValue(shared[i]))
			} else {
				p = G.NewMatrix(g, tensor.Float32, G.WithName(names[i]), G.WithValue(shared[i]))
			}
		} else {
			if len(shape) == 4 {
				p = G.NewTensor(g, tensor.Float32, 4, G.WithShape(shape...), G.WithName(names[i]), G.WithInit(G.GlorotU(1)))
			} else {
				p = G.NewMatrix(g, tensor.Float32, G.WithShape(shape...), G.WithName(names[i]), G.WithInit(G.GlorotU(1)))
			}
		}
		n.params = append(n.params, p)
	}

	c1, err := G.Conv2d(n.in, n.params[0], tensor.Shape{8, 8}, []int{0, 0}, []int{4, 4}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("conv1: %w", err)
	}
	a1 := G.Must(G.Rectify(c1))

	c2, err := G.Conv2d(a1, n.params[1], tensor.Shape{4, 4}, []int{0, 0}, []int{2, 2}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("conv2: %w", err)
	}
	a2 := G.Must(G.Rectify(c2))

	c3, err := G.Conv2d(a2, n.params[2], tensor.Shape{3, 3}, []int{0, 0}, []int{1, 1}, []int{1, 1})
	if err != nil {
		return nil, fmt.Errorf("conv3: %w", err)
	}
	a3 := G.Must(G.Rectify(c3))

	flat, err := G.Reshape(a3, tensor.Shape{batch, flatDim()})
	if err != nil {
		return nil, fmt.Errorf("flatten: %w", err)
	}

	h := G.Must(G.Rectify(G.Must(G.Mul(flat, n.params[3]))))
	n.out = G.Must(G.Mul(h, n.params[4]))

	if !training {
		n.vm = G.NewTapeMachine(g)
		return n, nil
	}

	// Q-values of the chosen actions are selected with a one-hot mask, then
	// regressed onto the externally computed Bellman targets.
	n.actions = G.NewMatrix(g, tensor.Float32, G.WithShape(batch, nActions), G.WithName("actions"))
	n.targets = G.NewVector(g, tensor.Float32, G.WithShape(batch), G.WithName("targets"))

	qa := G.Must(G.Sum(G.Must(G.HadamardProd(n.out, n.actions)), 1))
	diff := G.Must(G.Sub(qa, n.targets))
	n.cost = G.Must(G.Mean(G.Must(G.Square(diff))))

	if _, err := G.Grad(n.cost, n.params...); err != nil {
		return nil, fmt.Errorf("build gradient: %w", err)
	}

	n.vm = G.NewTapeMachine(g, G.BindDualValues(n.params...))

	return n, nil
}

func (n *qnet) weights() weightValues {
	w := make(weightValues, len(n.params))
	for i, p := range n.params {
		w[i] = p.Value().(*tensor.Dense)
	}
	return w
}

// forward runs the graph on the given input batch and returns the raw
// (batch*nActions) Q-value slice. The returned slice is only valid until the
// next run.
func (n *qnet) forward(in *tensor.Dense) ([]float32, error) {
	if err := G.Let(n.in, in); err != nil {
		return nil, fmt.Errorf("bind input: %w", err)
	}

	if err := n.vm.RunAll(); err != nil {
		return nil, fmt.Errorf("forward pass: %w", err)
	}
	defer n.vm.Reset()

	return n.out.Value().Data().([]float32), nil
}

// Model owns the policy network, its target copy, and the optimizer.
type Model struct {
	nActions int
	batch    int

	policy *qnet // training graph, canonical weights
	target *qnet // forward-only, weights copied on SyncTarget
	infer  *qnet // batch-1 forward-only, shares the policy weight tensors

	solver G.Solver
}

func NewModel(nActions, batch int, learnRate float64) (*Model, error) {
	policy, err := newQNet(batch, nActions, true, nil)
	if err != nil {
		return nil, fmt.Errorf("policy net: %w", err)
	}

	target, err := newQNet(batch, nActions, false, cloneWeights(policy.weights()))
	if err != nil {
		return nil, fmt.Errorf("target net: %w", err)
	}

	infer, err := newQNet(1, nActions, false, policy.weights())
	if err != nil {
		return nil, fmt.Errorf("inference net: %w", err)
	}

	return &Model{
		nActions: nActions,
		batch:    batch,
		policy:   policy,
		target:   target,
		infer:    infer,
		solver:   G.NewAdamSolver(G.WithLearnRate(learnRate), G.WithClip(100)),
	}, nil
}

// Predict returns the Q-values for a single encoded observation.
func (m *Model) Predict(obs []float32) ([]float32, error) {
	in := tensor.New(tensor.WithShape(1, frameC, frameH, frameW), tensor.WithBacking(obs))

	q, err := m.infer.forward(in)
	if err != nil {
		return nil, err
	}

	out := make([]float32, m.nActions)
	copy(out, q)
	return out, nil
}

// Fit runs one optimization step on a sampled batch and returns the loss.
// len(batch) must equal the model's batch size.
func (m *Model) Fit(batch []Transition, gamma float32) (float32, error) {
	if len(batch) != m.batch {
		return 0, fmt.Errorf("batch size %d, model built for %d", len(batch), m.batch)
	}

	obsLen := frameC * frameH * frameW
	states := make([]float32, m.batch*obsLen)
	nexts := make([]float32, m.batch*obsLen)
	mask := make([]float32, m.batch*m.nActions)

	for i, t := range batch {
		copy(states[i*obsLen:], encodeObs(t.Obs))
		copy(nexts[i*obsLen:], encodeObs(t.Next))
		mask[i*m.nActions+t.Action] = 1
	}

	// Bellman targets from the frozen target network.
	nextQ, err := m.target.forward(tensor.New(tensor.WithShape(m.batch, frameC, frameH, frameW), tensor.WithBacking(nexts)))
	if err != nil {
		return 0, fmt.Errorf("target net: %w", err)
	}

	targets := make([]float32, m.batch)
	for i, t := range batch {
		targets[i] = t.Reward
		if !t.Done {
			row := nextQ[i*m.nActions : (i+1)*m.nActions]
			targets[i] += gamma * row[argmax(row)]
		}
	}

	if err := G.Let(m.policy.in, tensor.New(tensor.WithShape(m.batch, frameC, frameH, frameW), tensor.WithBacking(states))); err != nil {
		return 0, fmt.Errorf("bind states: %w", err)
	}
	if err := G.Let(m.policy.actions, tensor.New(tensor.WithShape(m.batch, m.nActions), tensor.WithBacking(mask))); err != nil {
		return 0, fmt.Errorf("bind actions: %w", err)
	}
	if err := G.Let(m.policy.targets, tensor.New(tensor.WithShape(m.batch), tensor.WithBacking(targets))); err != nil {
		return 0, fmt.Errorf("bind targets: %w", err)
	}

	if err := m.policy.vm.RunAll(); err != nil {
		return 0, fmt.Errorf("training pass: %w", err)
	}

	loss := m.policy.cost.Value().Data().(float32)

	if err := m.solver.Step(G.NodesToValueGrads(m.policy.params)); err != nil {
		return 0, fmt.Errorf("optimizer step: %w", err)
	}
	m.policy.vm.Reset()

	return loss, nil
}

// SyncTarget copies the policy weights into the target network.
func (m *Model) SyncTarget() {
	src := m.policy.weights()
	dst := m.target.weights()
	for i := range src {
		copy(dst[i].Data().([]float32), src[i].Data().([]float32))
	}
}

func cloneWeights(w weightValues) weightValues {
	out := make(weightValues, len(w))
	for i, t := range w {
		out[i] = t.Clone().(*tensor.Dense)
	}
	return out
}
