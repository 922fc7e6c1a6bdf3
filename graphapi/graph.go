package graphapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// GraphVersion is written to every serialized graph.
const GraphVersion = 1

var (
	ErrUnknownNodeType = errors.New("unknown node type")
	ErrUnknownSocket   = errors.New("unknown socket")
	ErrIncompatible    = errors.New("incompatible sockets")
)

// Graph is a shader node graph: typed nodes and the links between their
// sockets. An input accepts at most one link; an output may feed any number
// of inputs.
type Graph struct {
	Nodes      []*GraphNode       `json:"nodes"`
	Links      []*Link            `json:"links"`
	LastNodeID int                `json:"last_node_id"`
	LastLinkID int                `json:"last_link_id"`
	Version    float32            `json:"version"`
	NodesByID  map[int]*GraphNode `json:"-"`
	LinksByID  map[int]*Link      `json:"-"`
	catalog    *NodeObjects
}

// NewGraph creates an empty graph whose nodes are instantiated from
// catalog. A nil catalog selects the built-in one.
func NewGraph(catalog *NodeObjects) *Graph {
	if catalog == nil {
		catalog = DefaultNodeObjects()
	}
	return &Graph{
		Nodes:     make([]*GraphNode, 0),
		Links:     make([]*Link, 0),
		Version:   GraphVersion,
		NodesByID: make(map[int]*GraphNode),
		LinksByID: make(map[int]*Link),
		catalog:   catalog,
	}
}

func (t *Graph) UnmarshalJSON(b []byte) error {
	// Create an alias type to avoid recursive call to UnmarshalJSON
	type Alias Graph

	alias := &Alias{}
	if err := json.Unmarshal(b, alias); err != nil {
		return err
	}

	t.Nodes = alias.Nodes
	t.Links = alias.Links
	t.LastNodeID = alias.LastNodeID
	t.LastLinkID = alias.LastLinkID
	t.Version = alias.Version
	return t.reindex()
}

// reindex rebuilds the ID maps and back pointers.
func (t *Graph) reindex() error {
	if t.Nodes == nil {
		t.Nodes = make([]*GraphNode, 0)
	}
	if t.Links == nil {
		t.Links = make([]*Link, 0)
	}
	t.NodesByID = make(map[int]*GraphNode, len(t.Nodes))
	t.LinksByID = make(map[int]*Link, len(t.Links))

	for i, node := range t.Nodes {
		if node == nil {
			return fmt.Errorf("node %d is null", i)
		}
		t.NodesByID[node.ID] = node
		node.Graph = t
		for i := range node.Inputs {
			node.Inputs[i].Node = node
		}
		for i := range node.Outputs {
			node.Outputs[i].Node = node
		}
	}
	for i, link := range t.Links {
		if link == nil {
			return fmt.Errorf("link %d is null", i)
		}
		t.LinksByID[link.ID] = link
	}
	return nil
}

// Catalog returns the node catalog the graph instantiates from.
func (t *Graph) Catalog() *NodeObjects {
	if t.catalog == nil {
		t.catalog = DefaultNodeObjects()
	}
	return t.catalog
}

// AddNode instantiates nodeType at pos. An empty name selects the type's
// display name; a taken name gets a numeric suffix (".001", ".002", ...).
func (t *Graph) AddNode(nodeType, name string, pos Pos) (*GraphNode, error) {
	nobject := t.Catalog().GetNodeObjectByName(nodeType)
	if nobject == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNodeType, nodeType)
	}
	if name == "" {
		name = nobject.DisplayName
	}

	t.LastNodeID++
	n := &GraphNode{
		ID:       t.LastNodeID,
		Type:     nodeType,
		Name:     t.uniqueName(name),
		Position: pos,
		Size:     Size{Width: 150, Height: 100},
		Inputs:   nobject.Input.slots(),
		Outputs:  nobject.Output.slots(),
		Graph:    t,
	}
	for k, v := range nobject.Properties {
		n.SetProperty(k, v)
	}
	for i := range n.Inputs {
		n.Inputs[i].Node = n
	}
	for i := range n.Outputs {
		n.Outputs[i].Node = n
	}

	t.Nodes = append(t.Nodes, n)
	t.NodesByID[n.ID] = n
	return n, nil
}

func (t *Graph) uniqueName(name string) string {
	if t.GetNodeWithName(name) == nil {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%03d", name, i)
		if t.GetNodeWithName(candidate) == nil {
			return candidate
		}
	}
}

// Connect links the output socket of from to the input socket of to. A link
// already feeding that input is replaced.
func (t *Graph) Connect(from *GraphNode, output string, to *GraphNode, input string) (*Link, error) {
	oi := from.outputIndex(output)
	if oi < 0 {
		return nil, fmt.Errorf("%w: %s has no output %q", ErrUnknownSocket, from.Name, output)
	}
	ii := to.inputIndex(input)
	if ii < 0 {
		return nil, fmt.Errorf("%w: %s has no input %q", ErrUnknownSocket, to.Name, input)
	}
	ot, it := from.Outputs[oi].Type, to.Inputs[ii].Type
	if !compatible(ot, it) {
		return nil, fmt.Errorf("%w: %s.%s (%s) -> %s.%s (%s)", ErrIncompatible, from.Name, output, ot, to.Name, input, it)
	}

	if existing := to.Inputs[ii].Link; existing != 0 {
		t.RemoveLink(existing)
	}

	t.LastLinkID++
	l := &Link{
		ID:         t.LastLinkID,
		OriginID:   from.ID,
		OriginSlot: oi,
		TargetID:   to.ID,
		TargetSlot: ii,
		Type:       ot,
	}
	t.Links = append(t.Links, l)
	t.LinksByID[l.ID] = l
	from.Outputs[oi].Links = append(from.Outputs[oi].Links, l.ID)
	to.Inputs[ii].Link = l.ID
	return l, nil
}

// RemoveLink disconnects and forgets the link with the given ID.
func (t *Graph) RemoveLink(id int) {
	l := t.GetLinkById(id)
	if l == nil {
		return
	}
	if origin := t.GetNodeById(l.OriginID); origin != nil && l.OriginSlot >= 0 && l.OriginSlot < len(origin.Outputs) {
		out := &origin.Outputs[l.OriginSlot]
		kept := out.Links[:0]
		for _, lid := range out.Links {
			if lid != id {
				kept = append(kept, lid)
			}
		}
		out.Links = kept
	}
	if target := t.GetNodeById(l.TargetID); target != nil && l.TargetSlot >= 0 && l.TargetSlot < len(target.Inputs) {
		if target.Inputs[l.TargetSlot].Link == id {
			target.Inputs[l.TargetSlot].Link = 0
		}
	}
	delete(t.LinksByID, id)
	for i, link := range t.Links {
		if link.ID == id {
			t.Links = append(t.Links[:i], t.Links[i+1:]...)
			break
		}
	}
}

func (t *Graph) GetLinkById(id int) *Link {
	val, ok := t.LinksByID[id]
	if ok {
		return val
	}
	return nil
}

func (t *Graph) GetNodeById(id int) *GraphNode {
	val, ok := t.NodesByID[id]
	if ok {
		return val
	}
	return nil
}

// GetNodeWithName returns the node with the given unique name, or nil.
func (t *Graph) GetNodeWithName(name string) *GraphNode {
	for _, n := range t.Nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

// GetNodesWithType retrieves all nodes in the graph that match a specified type.
func (t *Graph) GetNodesWithType(nodeType string) []*GraphNode {
	retv := make([]*GraphNode, 0)
	for _, n := range t.Nodes {
		if n.Type == nodeType {
			retv = append(retv, n)
		}
	}
	return retv
}

// Validate checks that every node type is in the catalog and that every
// link joins existing, compatible sockets. It returns the unknown node types
// alongside the error.
func (t *Graph) Validate() ([]string, error) {
	missing := make([]string, 0)
	seen := make(map[string]bool)
	for _, n := range t.Nodes {
		if t.Catalog().GetNodeObjectByName(n.Type) == nil && !seen[n.Type] {
			seen[n.Type] = true
			missing = append(missing, n.Type)
		}
	}
	if len(missing) != 0 {
		return missing, fmt.Errorf("%w: %s", ErrUnknownNodeType, strings.Join(missing, ", "))
	}

	for _, l := range t.Links {
		origin, target := t.GetNodeById(l.OriginID), t.GetNodeById(l.TargetID)
		if origin == nil || target == nil {
			return missing, fmt.Errorf("link %d references a missing node", l.ID)
		}
		if l.OriginSlot < 0 || l.OriginSlot >= len(origin.Outputs) || l.TargetSlot < 0 || l.TargetSlot >= len(target.Inputs) {
			return missing, fmt.Errorf("%w: link %d slot out of range", ErrUnknownSocket, l.ID)
		}
		if target.Inputs[l.TargetSlot].Link != l.ID {
			return missing, fmt.Errorf("link %d is not registered on its target input", l.ID)
		}
		if !compatible(origin.Outputs[l.OriginSlot].Type, target.Inputs[l.TargetSlot].Type) {
			return missing, fmt.Errorf("%w: link %d", ErrIncompatible, l.ID)
		}
	}
	return missing, nil
}

// NewGraphFromJsonReader reads a serialized graph and validates it against
// catalog (nil selects the built-in one). The returned slice lists node
// types missing from the catalog.
func NewGraphFromJsonReader(r io.Reader, catalog *NodeObjects) (*Graph, []string, error) {
	fileContent, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	graph := NewGraph(catalog)
	if err := json.Unmarshal(fileContent, graph); err != nil {
		return nil, nil, err
	}
	missing, err := graph.Validate()
	return graph, missing, err
}

func NewGraphFromJsonFile(path string, catalog *NodeObjects) (*Graph, []string, error) {
	freader, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer freader.Close()

	return NewGraphFromJsonReader(freader, catalog)
}

func NewGraphFromJsonString(data string, catalog *NodeObjects) (*Graph, []string, error) {
	return NewGraphFromJsonReader(strings.NewReader(data), catalog)
}

func (t *Graph) GraphToJSON() (string, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (t *Graph) SaveGraphToFile(path string) error {
	data, err := t.GraphToJSON()
	if err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.WriteString(data + "\n")
	return err
}
