package graphapi

// GraphNode is one node of a shader graph.
type GraphNode struct {
	ID       int    `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Position Pos    `json:"pos"`
	Size     Size   `json:"size"`
	Hide     bool   `json:"hide,omitempty"`
	// Properties holds the node's settings, such as the image it samples.
	Properties map[string]any `json:"properties,omitempty"`
	Inputs     []Slot         `json:"inputs,omitempty"`
	Outputs    []Slot         `json:"outputs,omitempty"`
	Graph      *Graph         `json:"-"`
}

// GetProperty returns the named property, or nil.
func (n *GraphNode) GetProperty(name string) any {
	if n.Properties == nil {
		return nil
	}
	return n.Properties[name]
}

// GetStringProperty returns the named property when it is a string.
func (n *GraphNode) GetStringProperty(name string) string {
	s, _ := n.GetProperty(name).(string)
	return s
}

func (n *GraphNode) SetProperty(name string, value any) {
	if n.Properties == nil {
		n.Properties = make(map[string]any)
	}
	n.Properties[name] = value
}

func (n *GraphNode) inputIndex(name string) int {
	for i, s := range n.Inputs {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (n *GraphNode) outputIndex(name string) int {
	for i, s := range n.Outputs {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func (n *GraphNode) GetInputWithName(name string) *Slot {
	if i := n.inputIndex(name); i >= 0 {
		return &n.Inputs[i]
	}
	return nil
}

func (n *GraphNode) GetOutputWithName(name string) *Slot {
	if i := n.outputIndex(name); i >= 0 {
		return &n.Outputs[i]
	}
	return nil
}

// GetInputLink returns the link feeding the named input, or nil.
func (n *GraphNode) GetInputLink(name string) *Link {
	slot := n.GetInputWithName(name)
	if slot == nil || slot.Link == 0 || n.Graph == nil {
		return nil
	}
	return n.Graph.GetLinkById(slot.Link)
}

// GetNodeForInput returns the node feeding the named input, or nil.
func (n *GraphNode) GetNodeForInput(name string) *GraphNode {
	l := n.GetInputLink(name)
	if l == nil {
		return nil
	}
	return n.Graph.GetNodeById(l.OriginID)
}

// GetLinks returns the IDs of every link leaving the node.
func (n *GraphNode) GetLinks() []int {
	retv := make([]int, 0)
	for _, o := range n.Outputs {
		retv = append(retv, o.Links...)
	}
	return retv
}
