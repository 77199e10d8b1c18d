package v1

// FlowGraph is the stored shape of an automation flow: an ordered list of
// nodes with optional edges describing execution order. Nodes without any
// incoming edge are entry candidates; ties resolve by list order.
type FlowGraph struct {
	Nodes []FlowNode `json:"nodes" validate:"required,min=1,dive"`
	Edges []FlowEdge `json:"edges,omitempty" validate:"omitempty,dive"`
}

type FlowNode struct {
	ID     string         `json:"id" validate:"required,max=100,node_id"`
	Type   string         `json:"type" validate:"required,max=100"`
	Label  string         `json:"label,omitempty" validate:"omitempty,max=200"`
	Params map[string]any `json:"params,omitempty"`
}

type FlowEdge struct {
	From string `json:"from" validate:"required,node_id"`
	To   string `json:"to" validate:"required,node_id"`
}

// TaskTemplate is one compiled node of a flow, in execution order. Devices
// receive the template list as part of a job's execution config.
type TaskTemplate struct {
	NodeID   string         `json:"node_id"`
	NodeType string         `json:"node_type"`
	Label    string         `json:"label,omitempty"`
	Sequence int            `json:"sequence"`
	Params   map[string]any `json:"params,omitempty"`
}

type FlowCreateRequest struct {
	Name  string    `json:"name" validate:"required,max=100,flow_name"`
	Graph FlowGraph `json:"graph"`
}

type Flow struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Version int       `json:"version"`
	Graph   FlowGraph `json:"graph"`
}
