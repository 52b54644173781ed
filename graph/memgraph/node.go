package memgraph

import (
	"github.com/kineticfactory/plink"
	"github.com/kineticfactory/plink/graph"
)

type (
	node struct {
		id       graph.NodeID
		desc     graph.Description
		unit     unit
		inputs   []endpoint
		output   endpoint // where this node's output goes, if anywhere
		buf      plink.BufferList
		view     plink.BufferList
		ins      []plink.BufferList
		notifies []notification
	}

	endpoint struct {
		node *node
		bus  int
	}

	notification struct {
		key graph.RenderKey
		fn  graph.RenderNotifyFunc
	}
)

func newNode(id graph.NodeID, desc graph.Description, u unit) *node {
	n := u.numInputs()
	return &node{
		id:     id,
		desc:   desc,
		unit:   u,
		inputs: make([]endpoint, n),
		ins:    make([]plink.BufferList, n),
	}
}

func (n *node) init(sampleRate, maxFrames int) {
	n.buf = plink.NewBufferList(numChannels, maxFrames)
	n.view = make(plink.BufferList, numChannels)
	n.unit.init(sampleRate, maxFrames)
}

// render pulls the inputs recursively and renders the node into its own
// buffer. It runs on the audio thread.
func (n *node) render(frames int) plink.BufferList {
	for bus, in := range n.inputs {
		if in.node == nil {
			n.ins[bus] = nil
			continue
		}
		n.ins[bus] = in.node.render(frames)
	}
	for c := range n.view {
		n.view[c] = n.buf[c][:frames]
	}
	n.unit.render(n.ins, n.view)
	return n.view
}

// upstream reports whether target feeds into n, directly or indirectly.
func (n *node) upstream(target *node) bool {
	for _, in := range n.inputs {
		if in.node == nil {
			continue
		}
		if in.node == target || in.node.upstream(target) {
			return true
		}
	}
	return false
}

func (n *node) isOutput() bool {
	return n.desc.Type == graph.OutputComponent
}
