package filtergraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef_String(t *testing.T) {
	assert.Equal(t, "[0:v]", Input(0, Video).String())
	assert.Equal(t, "[3:a]", Input(3, Audio).String())
	assert.Equal(t, "[outv]", Pin("outv").String())
	assert.Equal(t, -1, Pin("x").InputIndex())
	assert.Equal(t, 2, Input(2, Video).InputIndex())
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{-0.0, "0"},
		{0.5, "0.5"},
		{9.5, "9.5"},
		{10, "10"},
		{3.14159, "3.142"},
		{14.9999, "15"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatSeconds(tt.in))
		})
	}
}

func TestGraph_String(t *testing.T) {
	g := New()
	cat := g.Add(OpConcat, []Ref{Input(0, Video), Input(1, Video)}, "cat",
		PInt("n", 2), PInt("v", 1), PInt("a", 0))
	g.Add(OpFade, []Ref{cat}, "outv", P("t", "in"), PSec("st", 0), PSec("d", 0.5))

	assert.Equal(t, "[0:v][1:v]concat=n=2:v=1:a=0[cat];[cat]fade=t=in:st=0:d=0.5[outv]", g.String())
	require.NoError(t, g.Validate("outv"))
}

func TestGraph_Validate(t *testing.T) {
	t.Run("dangling reference", func(t *testing.T) {
		g := New()
		g.Add(OpFade, []Ref{Pin("missing")}, "outv", P("t", "in"))
		assert.ErrorIs(t, g.Validate("outv"), ErrDanglingPin)
	})

	t.Run("forward reference is dangling", func(t *testing.T) {
		g := New()
		g.Add(OpFade, []Ref{Pin("b")}, "a")
		g.Add(OpFade, []Ref{Pin("a")}, "b")
		assert.ErrorIs(t, g.Validate("b"), ErrDanglingPin)
	})

	t.Run("duplicate output", func(t *testing.T) {
		g := New()
		g.Add(OpFade, []Ref{Input(0, Video)}, "x")
		g.Add(OpFade, []Ref{Input(1, Video)}, "x")
		assert.ErrorIs(t, g.Validate("x"), ErrDuplicatePin)
	})

	t.Run("pin consumed twice", func(t *testing.T) {
		g := New()
		x := g.Add(OpFade, []Ref{Input(0, Video)}, "x")
		g.Add(OpConcat, []Ref{x, x}, "outv")
		assert.ErrorIs(t, g.Validate("outv"), ErrPinReused)
	})

	t.Run("unused pin", func(t *testing.T) {
		g := New()
		g.Add(OpFade, []Ref{Input(0, Video)}, "orphan")
		g.Add(OpFade, []Ref{Input(1, Video)}, "outv")
		assert.ErrorIs(t, g.Validate("outv"), ErrPinUnused)
	})

	t.Run("terminal consumed", func(t *testing.T) {
		g := New()
		v := g.Add(OpFade, []Ref{Input(0, Video)}, "outv")
		g.Add(OpFade, []Ref{v}, "more")
		assert.ErrorIs(t, g.Validate("outv", "more"), ErrTerminalConsumed)
	})

	t.Run("missing terminal", func(t *testing.T) {
		g := New()
		g.Add(OpFade, []Ref{Input(0, Video)}, "outv")
		assert.ErrorIs(t, g.Validate("outv", "outa"), ErrDanglingPin)
	})

	t.Run("node without inputs", func(t *testing.T) {
		g := New()
		g.Add(OpFade, nil, "outv")
		assert.ErrorIs(t, g.Validate("outv"), ErrNoInputs)
	})
}

func TestGraph_Chain(t *testing.T) {
	g := New()
	a := g.Add(OpATrim, []Ref{Input(2, Audio)}, "a0", PSec("duration", 10))
	b := g.Add(OpVolume, []Ref{a}, "a1", P("volume", "0.5"))
	g.Add(OpAFade, []Ref{b}, "outa", P("t", "in"))

	var ops []Op
	for _, n := range g.Chain("outa") {
		ops = append(ops, n.Op)
	}
	if diff := cmp.Diff([]Op{OpATrim, OpVolume, OpAFade}, ops); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}
}

func TestNode_Seconds(t *testing.T) {
	n := Node{Op: OpFade, Params: []Param{P("t", "out"), PSec("st", 9.5)}}
	st, ok := n.Seconds("st")
	require.True(t, ok)
	assert.InDelta(t, 9.5, st, 1e-9)

	_, ok = n.Seconds("t")
	assert.False(t, ok)
	_, ok = n.Seconds("d")
	assert.False(t, ok)
}

func TestChainString(t *testing.T) {
	nodes := []Node{
		{Op: OpScale, Params: []Param{PInt("w", 1920), PInt("h", 1080)}},
		{Op: OpSetSAR, Params: []Param{P("sar", "1")}},
	}
	assert.Equal(t, "scale=w=1920:h=1080,setsar=sar=1", ChainString(nodes...))
}

func TestGraph_NodesIsCopy(t *testing.T) {
	g := New()
	g.Add(OpFade, []Ref{Input(0, Video)}, "outv")
	nodes := g.Nodes()
	nodes[0].Output = "changed"
	assert.Equal(t, "outv", g.Nodes()[0].Output)
	assert.Equal(t, 1, g.Len())
	assert.Len(t, g.Find(OpFade), 1)
	assert.Empty(t, g.Find(OpXFade))
}
