package graphapi

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogSocketOrder(t *testing.T) {
	catalog := DefaultNodeObjects()

	bsdf := catalog.GetNodeObjectByName(TypeBsdfPrincipled)
	if bsdf == nil {
		t.Fatal("Expected Principled BSDF in the catalog")
	}
	want := []string{"Base Color", "Metallic", "Roughness", "IOR", "Alpha", "Normal"}
	if strings.Join(bsdf.Input.Names, "|") != strings.Join(want, "|") {
		t.Errorf("Expected inputs %v, got %v", want, bsdf.Input.Names)
	}
	compareField(t, "display name", "Principled BSDF", bsdf.DisplayName)

	for _, name := range []string{TypeTexImage, TypeNormalMap, TypeDisplacement, TypeOutputMaterial} {
		if catalog.GetNodeObjectByName(name) == nil {
			t.Errorf("Expected %s in the catalog", name)
		}
	}
}

func TestAddNode(t *testing.T) {
	g := NewGraph(nil)

	n, err := g.AddNode(TypeTexImage, "DiffuseNode", Pos{X: -200, Y: 300})
	if err != nil {
		t.Fatalf("Failed to add node: %v", err)
	}
	compareField(t, "id", 1, n.ID)
	compareField(t, "inputs", 1, len(n.Inputs))
	compareField(t, "outputs", 2, len(n.Outputs))
	compareField(t, "interpolation", "Linear", n.GetStringProperty("interpolation"))
	if n.Outputs[0].Node != n {
		t.Error("Expected output slot to point back at its node")
	}

	dup, err := g.AddNode(TypeTexImage, "DiffuseNode", Pos{})
	if err != nil {
		t.Fatalf("Failed to add node: %v", err)
	}
	compareField(t, "suffixed name", "DiffuseNode.001", dup.Name)

	unnamed, _ := g.AddNode(TypeNormalMap, "", Pos{})
	compareField(t, "default name", "Normal Map", unnamed.Name)

	if _, err := g.AddNode("ShaderNodeBogus", "", Pos{}); !errors.Is(err, ErrUnknownNodeType) {
		t.Errorf("Expected ErrUnknownNodeType, got %v", err)
	}
}

func TestConnect(t *testing.T) {
	g := NewGraph(nil)
	tex, _ := g.AddNode(TypeTexImage, "RoughnessNode", Pos{})
	bsdf, _ := g.AddNode(TypeBsdfPrincipled, "", Pos{})
	out, _ := g.AddNode(TypeOutputMaterial, "", Pos{})

	l, err := g.Connect(tex, "Color", bsdf, "Roughness")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	compareField(t, "origin", tex.ID, l.OriginID)
	compareField(t, "target slot", 2, l.TargetSlot)
	compareField(t, "type", SocketRGBA, l.Type)
	if bsdf.GetNodeForInput("Roughness") != tex {
		t.Error("Expected roughness input to be fed by the texture")
	}

	if _, err := g.Connect(tex, "Color", out, "Surface"); !errors.Is(err, ErrIncompatible) {
		t.Errorf("Expected ErrIncompatible, got %v", err)
	}
	if _, err := g.Connect(tex, "Colour", bsdf, "Metallic"); !errors.Is(err, ErrUnknownSocket) {
		t.Errorf("Expected ErrUnknownSocket, got %v", err)
	}

	// reconnecting an input replaces its link
	other, _ := g.AddNode(TypeTexImage, "MetallicNode", Pos{})
	l2, err := g.Connect(other, "Alpha", bsdf, "Roughness")
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	compareField(t, "links", 1, len(g.Links))
	if g.GetLinkById(l.ID) != nil {
		t.Error("Expected replaced link to be removed")
	}
	compareField(t, "origin outputs", 0, len(tex.Outputs[0].Links))
	compareField(t, "input link", l2.ID, bsdf.GetInputWithName("Roughness").Link)
}

func TestRoundtripGraph(t *testing.T) {
	g := NewGraph(nil)
	tex, _ := g.AddNode(TypeTexImage, "HeightNode", Pos{X: 300, Y: 100})
	tex.SetProperty("image", "/tmp/rust1/height.png")
	tex.Hide = true
	disp, _ := g.AddNode(TypeDisplacement, "DisplacementNode", Pos{X: 350, Y: 150})
	out, _ := g.AddNode(TypeOutputMaterial, "", Pos{X: 300, Y: 300})
	if _, err := g.Connect(tex, "Color", disp, "Height"); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Connect(disp, "Displacement", out, "Displacement"); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.SaveGraphToFile(path); err != nil {
		t.Fatalf("Failed to save graph: %v", err)
	}

	loaded, missing, err := NewGraphFromJsonFile(path, nil)
	if err != nil {
		t.Fatalf("Failed to load graph: %v", err)
	}
	compareField(t, "missing", 0, len(missing))
	compareField(t, "nodes count", len(g.Nodes), len(loaded.Nodes))
	compareField(t, "links count", len(g.Links), len(loaded.Links))
	compareField(t, "last link id", g.LastLinkID, loaded.LastLinkID)

	h := loaded.GetNodeWithName("HeightNode")
	if h == nil {
		t.Fatal("Expected HeightNode after reload")
	}
	compareField(t, "image", "/tmp/rust1/height.png", h.GetStringProperty("image"))
	compareField(t, "x", 300.0, h.Position.X)
	compareField(t, "hide", true, h.Hide)
	if loaded.GetNodeWithName("Material Output").GetNodeForInput("Displacement").Name != "DisplacementNode" {
		t.Error("Expected displacement to feed the material output after reload")
	}

	// links serialize as tuples
	data, _ := os.ReadFile(path)
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	first := raw["links"].([]interface{})[0].([]interface{})
	compareField(t, "tuple length", 6, len(first))
	compareField(t, "tuple type", "RGBA", first[5])

	// a reloaded graph keeps growing from its last IDs
	n, _ := loaded.AddNode(TypeNormalMap, "", Pos{})
	compareField(t, "next id", g.LastNodeID+1, n.ID)
}

func TestLoadGraphWithUnknownType(t *testing.T) {
	data := `{"nodes":[{"id":1,"type":"ShaderNodeMystery","name":"x","pos":[0,0],"size":{"0":150,"1":100}}],"links":[],"last_node_id":1,"last_link_id":0,"version":1}`
	g, missing, err := NewGraphFromJsonString(data, nil)
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Fatalf("Expected ErrUnknownNodeType, got %v", err)
	}
	if len(missing) != 1 || missing[0] != "ShaderNodeMystery" {
		t.Errorf("Expected missing [ShaderNodeMystery], got %v", missing)
	}
	compareField(t, "size width", 150.0, g.Nodes[0].Size.Width)
}

func TestLoadGraphWithDanglingLink(t *testing.T) {
	data := `{"nodes":[],"links":[[1,1,0,2,0,"RGBA"]],"last_node_id":2,"last_link_id":1,"version":1}`
	if _, _, err := NewGraphFromJsonString(data, nil); err == nil {
		t.Error("Expected an error for a link between missing nodes")
	}
}

func TestLoadGraphRejectsNegativeSlots(t *testing.T) {
	g := NewGraph(nil)
	tex, _ := g.AddNode(TypeTexImage, "RoughnessNode", Pos{})
	bsdf, _ := g.AddNode(TypeBsdfPrincipled, "", Pos{})
	if _, err := g.Connect(tex, "Color", bsdf, "Roughness"); err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatal(err)
	}

	for _, field := range []int{2, 4} {
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			t.Fatal(err)
		}
		raw["links"].([]interface{})[0].([]interface{})[field] = -1
		bad, _ := json.Marshal(raw)

		_, _, err := NewGraphFromJsonString(string(bad), nil)
		if !errors.Is(err, ErrUnknownSocket) {
			t.Errorf("Expected ErrUnknownSocket for slot field %d, got %v", field, err)
		}
	}

	// removing a link with a bad slot leaves the nodes alone
	g.LinksByID[99] = &Link{ID: 99, OriginID: tex.ID, OriginSlot: -1, TargetID: bsdf.ID, TargetSlot: -1}
	g.RemoveLink(99)
	compareField(t, "roughness link kept", 1, len(g.Links))
}

func TestLoadGraphRejectsNullEntries(t *testing.T) {
	for _, data := range []string{
		`{"nodes":[null],"links":[],"last_node_id":0,"last_link_id":0,"version":1}`,
		`{"nodes":[],"links":[null],"last_node_id":0,"last_link_id":0,"version":1}`,
	} {
		if _, _, err := NewGraphFromJsonString(data, nil); err == nil {
			t.Errorf("Expected an error loading %s", data)
		}
	}
}

func TestLinkUnmarshalRejectsBadTuple(t *testing.T) {
	var l Link
	if err := json.Unmarshal([]byte(`[1,2,3]`), &l); err == nil {
		t.Error("Expected an error for a short tuple")
	}
	if err := json.Unmarshal([]byte(`[1,"a",0,2,0,"RGBA"]`), &l); err == nil {
		t.Error("Expected an error for a non-numeric field")
	}
}

func compareField(t *testing.T, name string, expected, actual interface{}) {
	t.Helper()
	if expected != actual {
		t.Errorf("%s mismatch: expected %v, got %v", name, expected, actual)
	}
}
