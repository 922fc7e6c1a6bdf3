package graphapi

// Slot is an input or output socket of a GraphNode.
type Slot struct {
	Name string     `json:"name"`
	Type string     `json:"type"`           // socket type, one of the Socket constants
	Node *GraphNode `json:"-"`              // the node the slot belongs to
	Link int        `json:"link,omitempty"` // link ID for an input slot, 0 when unconnected
	// Links holds the link IDs leaving an output slot.
	Links []int `json:"links,omitempty"`
}

// compatible reports whether an output of type from may feed an input of
// type to. Color, value and vector sockets convert into each other; shader
// sockets only connect to shader sockets.
func compatible(from, to string) bool {
	return (from == SocketShader) == (to == SocketShader)
}
