package graphapi

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Socket types.
const (
	SocketRGBA   = "RGBA"
	SocketFloat  = "VALUE"
	SocketVector = "VECTOR"
	SocketShader = "SHADER"
)

// Node types used by the material builder.
const (
	TypeTexImage       = "ShaderNodeTexImage"
	TypeNormalMap      = "ShaderNodeNormalMap"
	TypeDisplacement   = "ShaderNodeDisplacement"
	TypeBsdfPrincipled = "ShaderNodeBsdfPrincipled"
	TypeOutputMaterial = "ShaderNodeOutputMaterial"
)

//go:embed shader_nodes.json
var defaultCatalog []byte

// NodeObjects is the catalog of node types a graph can instantiate.
type NodeObjects struct {
	Objects map[string]*NodeObject
}

// NodeObject describes how to create an instance of a node type.
type NodeObject struct {
	Name        string      `json:"-"`
	DisplayName string      `json:"display_name"`
	Category    string      `json:"category"`
	Input       *SocketList `json:"input"`
	Output      *SocketList `json:"output"`
	// Properties are the defaults copied onto every new instance.
	Properties map[string]any `json:"properties,omitempty"`
}

// SocketList is a JSON object of socket name to socket type whose key order
// is the socket order.
type SocketList struct {
	Names []string
	Types map[string]string
}

func (sl *SocketList) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))

	if _, err := dec.Token(); err != nil {
		return err
	} // consume opening brace

	sl.Names = make([]string, 0)
	sl.Types = make(map[string]string)
	for dec.More() {
		t, err := dec.Token()
		if err != nil {
			return err
		}
		key := t.(string)

		var socketType string
		if err := dec.Decode(&socketType); err != nil {
			return err
		}
		if _, dup := sl.Types[key]; dup {
			return fmt.Errorf("duplicate socket %q", key)
		}
		sl.Names = append(sl.Names, key)
		sl.Types[key] = socketType
	}

	if _, err := dec.Token(); err != nil { // consume closing brace
		return err
	}
	return nil
}

func (sl *SocketList) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range sl.Names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		v, _ := json.Marshal(sl.Types[name])
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (sl *SocketList) slots() []Slot {
	if sl == nil {
		return nil
	}
	retv := make([]Slot, 0, len(sl.Names))
	for _, name := range sl.Names {
		retv = append(retv, Slot{Name: name, Type: sl.Types[name]})
	}
	return retv
}

// NewNodeObjectsFromReader reads a catalog: a JSON object of node type to
// NodeObject.
func NewNodeObjectsFromReader(r io.Reader) (*NodeObjects, error) {
	objects := make(map[string]*NodeObject)
	if err := json.NewDecoder(r).Decode(&objects); err != nil {
		return nil, err
	}
	for name, o := range objects {
		o.Name = name
		if o.DisplayName == "" {
			o.DisplayName = name
		}
	}
	return &NodeObjects{Objects: objects}, nil
}

// DefaultNodeObjects returns the built-in shader node catalog.
func DefaultNodeObjects() *NodeObjects {
	n, err := NewNodeObjectsFromReader(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("graphapi: built-in catalog: %v", err))
	}
	return n
}

func (n *NodeObjects) GetNodeObjectByName(name string) *NodeObject {
	val, ok := n.Objects[name]
	if ok {
		return val
	}
	return nil
}

// Names returns the catalog's node types, sorted.
func (n *NodeObjects) Names() []string {
	retv := make([]string, 0, len(n.Objects))
	for k := range n.Objects {
		retv = append(retv, k)
	}
	sort.Strings(retv)
	return retv
}
