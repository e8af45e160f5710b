// Package filtergraph models an ffmpeg filter graph as explicit nodes and
// labelled pins. Plans are assembled and checked as structure, and only
// serialized to ffmpeg's textual -filter_complex syntax at the boundary.
package filtergraph

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Static errors for graph validation.
var (
	// ErrDuplicatePin is returned when two nodes declare the same output pin.
	ErrDuplicatePin = errors.New("filtergraph: duplicate output pin")
	// ErrDanglingPin is returned when a node references a pin that was not declared before it.
	ErrDanglingPin = errors.New("filtergraph: reference to undeclared pin")
	// ErrPinReused is returned when a pin is consumed by more than one node.
	ErrPinReused = errors.New("filtergraph: pin consumed more than once")
	// ErrPinUnused is returned when a non-terminal pin is never consumed.
	ErrPinUnused = errors.New("filtergraph: pin never consumed")
	// ErrTerminalConsumed is returned when a terminal pin feeds another node.
	ErrTerminalConsumed = errors.New("filtergraph: terminal pin consumed")
	// ErrNoInputs is returned when a node has no inputs.
	ErrNoInputs = errors.New("filtergraph: node has no inputs")
)

// Op is a filter operation understood by the transcoder.
type Op string

// Supported filter operations.
const (
	OpScale  Op = "scale"
	OpPad    Op = "pad"
	OpSetSAR Op = "setsar"
	OpFPS    Op = "fps"
	OpFade   Op = "fade"
	OpAFade  Op = "afade"
	OpATrim  Op = "atrim"
	OpVolume Op = "volume"
	OpConcat Op = "concat"
	OpXFade  Op = "xfade"
)

// StreamKind selects the video or audio stream of a raw input.
type StreamKind string

const (
	// Video selects the input's video stream.
	Video StreamKind = "v"
	// Audio selects the input's audio stream.
	Audio StreamKind = "a"
)

// Ref points at either a raw input stream ("[2:v]") or a declared pin ("[v2]").
type Ref struct {
	input int
	kind  StreamKind
	pin   string
}

// Input references stream kind of the raw input with the given index.
func Input(index int, kind StreamKind) Ref {
	return Ref{input: index, kind: kind}
}

// Pin references a named pin produced by a node.
func Pin(name string) Ref {
	return Ref{input: -1, pin: name}
}

// IsPin reports whether r references a declared pin rather than a raw input.
func (r Ref) IsPin() bool {
	return r.pin != ""
}

// Name returns the pin name, or "" for raw input streams.
func (r Ref) Name() string {
	return r.pin
}

// InputIndex returns the input index for raw stream references, -1 for pins.
func (r Ref) InputIndex() int {
	if r.IsPin() {
		return -1
	}
	return r.input
}

// String renders the reference in filter syntax, including brackets.
func (r Ref) String() string {
	if r.IsPin() {
		return "[" + r.pin + "]"
	}
	return fmt.Sprintf("[%d:%s]", r.input, r.kind)
}

// Param is a single key=value filter option. Order is preserved on output.
type Param struct {
	Key   string
	Value string
}

// P builds a Param from a string value.
func P(key, value string) Param {
	return Param{Key: key, Value: value}
}

// PInt builds a Param from an integer value.
func PInt(key string, value int) Param {
	return Param{Key: key, Value: strconv.Itoa(value)}
}

// PSec builds a Param from a number of seconds, rounded to milliseconds.
func PSec(key string, seconds float64) Param {
	return Param{Key: key, Value: FormatSeconds(seconds)}
}

// FormatSeconds renders seconds with at most three decimals and no trailing zeros.
func FormatSeconds(seconds float64) string {
	rounded := math.Round(seconds*1000) / 1000
	if rounded == 0 {
		rounded = 0 // normalize -0
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// Node is one filter declaration: inputs, operation, parameters and output pin.
type Node struct {
	Inputs []Ref
	Op     Op
	Params []Param
	Output string
}

// Param returns the value of the named parameter.
func (n Node) Param(key string) (string, bool) {
	for _, p := range n.Params {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Seconds returns the named parameter parsed as seconds.
func (n Node) Seconds(key string) (float64, bool) {
	v, ok := n.Param(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String renders the node in filter syntax.
func (n Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString(in.String())
	}
	b.WriteString(string(n.Op))
	for i, p := range n.Params {
		if i == 0 {
			b.WriteByte('=')
		} else {
			b.WriteByte(':')
		}
		b.WriteString(p.Key)
		b.WriteByte('=')
		b.WriteString(p.Value)
	}
	if n.Output != "" {
		b.WriteString("[" + n.Output + "]")
	}
	return b.String()
}

// Graph is an ordered list of nodes. Declaration order is topological order.
type Graph struct {
	nodes []Node
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{}
}

// Add appends a node and returns a reference to its output pin.
func (g *Graph) Add(op Op, inputs []Ref, output string, params ...Param) Ref {
	g.nodes = append(g.nodes, Node{
		Inputs: append([]Ref(nil), inputs...),
		Op:     op,
		Params: append([]Param(nil), params...),
		Output: output,
	})
	return Pin(output)
}

// Nodes returns a copy of the declared nodes in order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Find returns the nodes with the given operation, in declaration order.
func (g *Graph) Find(op Op) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Op == op {
			out = append(out, n)
		}
	}
	return out
}

// Producer returns the node declaring the given pin.
func (g *Graph) Producer(pin string) (Node, bool) {
	for _, n := range g.nodes {
		if n.Output == pin {
			return n, true
		}
	}
	return Node{}, false
}

// Chain walks back from pin through single-input nodes and returns them in
// source-to-sink order. It stops at raw inputs and at multi-input nodes,
// which are included as the first element.
func (g *Graph) Chain(pin string) []Node {
	var rev []Node
	cur := pin
	for {
		n, ok := g.Producer(cur)
		if !ok {
			break
		}
		rev = append(rev, n)
		if len(n.Inputs) != 1 || !n.Inputs[0].IsPin() {
			break
		}
		cur = n.Inputs[0].Name()
	}
	out := make([]Node, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out
}

// Validate checks the pin discipline: output pins are unique, every referenced
// pin is declared by an earlier node, every pin is consumed exactly once, and
// the terminal pins are produced but never consumed. Because references may
// only point backwards, a valid graph is acyclic.
func (g *Graph) Validate(terminals ...string) error {
	declared := make(map[string]bool, len(g.nodes))
	consumed := make(map[string]bool, len(g.nodes))
	terminal := make(map[string]bool, len(terminals))
	for _, t := range terminals {
		terminal[t] = true
	}

	for i, n := range g.nodes {
		if len(n.Inputs) == 0 {
			return fmt.Errorf("%w: node %d (%s)", ErrNoInputs, i, n.Op)
		}
		for _, in := range n.Inputs {
			if !in.IsPin() {
				continue
			}
			name := in.Name()
			if !declared[name] {
				return fmt.Errorf("%w: [%s] in node %d (%s)", ErrDanglingPin, name, i, n.Op)
			}
			if terminal[name] {
				return fmt.Errorf("%w: [%s]", ErrTerminalConsumed, name)
			}
			if consumed[name] {
				return fmt.Errorf("%w: [%s]", ErrPinReused, name)
			}
			consumed[name] = true
		}
		if declared[n.Output] {
			return fmt.Errorf("%w: [%s]", ErrDuplicatePin, n.Output)
		}
		declared[n.Output] = true
	}

	for _, t := range terminals {
		if !declared[t] {
			return fmt.Errorf("%w: terminal [%s]", ErrDanglingPin, t)
		}
	}
	for _, n := range g.nodes {
		if !terminal[n.Output] && !consumed[n.Output] {
			return fmt.Errorf("%w: [%s]", ErrPinUnused, n.Output)
		}
	}
	return nil
}

// String serializes the graph to ffmpeg -filter_complex syntax.
func (g *Graph) String() string {
	parts := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ";")
}

// ChainString renders nodes as a comma-separated chain without pins, the
// form accepted by -vf.
func ChainString(nodes ...Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		n.Inputs = nil
		n.Output = ""
		parts[i] = n.String()
	}
	return strings.Join(parts, ",")
}
