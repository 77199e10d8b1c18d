package flow

import (
	"errors"
	"fmt"

	api "github.com/fleetdeck/fleetdeck/api/v1"
)

var ErrEmptyFlow = errors.New("flow has no nodes")

// Compile flattens a flow graph into the ordered task list a device
// executes. The entry node is the first node, in stored order, that no edge
// points at; from there the walk follows outgoing edges depth-first in edge
// order. Nodes a cycle or a disconnected fork keeps unreachable are appended
// in stored order, so every node always compiles to exactly one task.
//
// The result is a snapshot: dispatch copies it into the job and later edits
// to the flow never touch in-flight work.
func Compile(graph api.FlowGraph) ([]api.TaskTemplate, error) {
	if len(graph.Nodes) == 0 {
		return nil, ErrEmptyFlow
	}

	index := make(map[string]int, len(graph.Nodes))
	for i, node := range graph.Nodes {
		if node.ID == "" {
			return nil, fmt.Errorf("node at position %d has no id", i)
		}
		if _, found := index[node.ID]; found {
			return nil, fmt.Errorf("duplicate node id %q", node.ID)
		}
		index[node.ID] = i
	}

	outgoing := make(map[string][]string)
	incoming := make(map[string]int)
	for _, edge := range graph.Edges {
		if _, found := index[edge.From]; !found {
			return nil, fmt.Errorf("edge references unknown node %q", edge.From)
		}
		if _, found := index[edge.To]; !found {
			return nil, fmt.Errorf("edge references unknown node %q", edge.To)
		}
		outgoing[edge.From] = append(outgoing[edge.From], edge.To)
		incoming[edge.To]++
	}

	visited := make(map[string]bool, len(graph.Nodes))
	order := make([]string, 0, len(graph.Nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		for _, next := range outgoing[id] {
			visit(next)
		}
	}

	for _, node := range graph.Nodes {
		if incoming[node.ID] == 0 {
			visit(node.ID)
			break
		}
	}

	// pure cycles have no entry node; whatever the walk missed keeps its
	// stored order
	for _, node := range graph.Nodes {
		visit(node.ID)
	}

	templates := make([]api.TaskTemplate, 0, len(order))
	for seq, id := range order {
		node := graph.Nodes[index[id]]
		templates = append(templates, api.TaskTemplate{
			NodeID:   node.ID,
			NodeType: node.Type,
			Label:    node.Label,
			Sequence: seq,
			Params:   node.Params,
		})
	}
	return templates, nil
}
