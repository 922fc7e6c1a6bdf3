// Package material turns a generated texture set into a shader graph and
// attaches it to the host's active object.
//
// The graph built for a set named N is always the same:
//
//	basecolor -> Image Texture --Color------------------> BSDF.Base Color
//	metallic  -> Image Texture --Color------------------> BSDF.Metallic
//	roughness -> Image Texture --Color------------------> BSDF.Roughness
//	normal    -> Image Texture --Color--> Normal Map ---> BSDF.Normal
//	height    -> Image Texture --Color--> Displacement -> Output.Displacement
//
// on top of the default Principled BSDF feeding the Material Output.
package material

import (
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/richinsley/matforge2go/graphapi"
	"github.com/richinsley/matforge2go/logging"
	"go.uber.org/zap"
)

// NamePrefix is prepended to the texture set name to name the material.
const NamePrefix = "M_MF_"

// Color spaces assigned to sampled images.
const (
	ColorSpaceSRGB     = "sRGB"
	ColorSpaceNonColor = "Non-Color"
)

// Names of the default nodes every material starts with.
const (
	BsdfNodeName   = "Principled BSDF"
	OutputNodeName = "Material Output"
)

// Map is one texture of the artifact set.
type Map struct {
	Key        string // file stem, e.g. "basecolor"
	Label      string // image name in the host
	ColorSpace string
}

// File is the map's file name.
func (m Map) File() string { return m.Key + ".png" }

// Maps is the artifact set, in the order it is verified.
var Maps = []Map{
	{"basecolor", "Base Color", ColorSpaceSRGB},
	{"normal", "Normal", ColorSpaceNonColor},
	{"height", "Height", ColorSpaceNonColor},
	{"roughness", "Roughness", ColorSpaceNonColor},
	{"metallic", "Metallic", ColorSpaceNonColor},
}

// Image is a texture loaded into a material.
type Image struct {
	Map        string `json:"map"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	ColorSpace string `json:"colorspace"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Material is a named shader graph.
type Material struct {
	Name   string          `json:"name"`
	Graph  *graphapi.Graph `json:"graph"`
	Images []Image         `json:"images"`
	// CreatedNodes and CreatedLinks count what the builder added on top of
	// the default BSDF and output.
	CreatedNodes int `json:"-"`
	CreatedLinks int `json:"-"`
}

// MaterialName is the material name for the texture set name.
func MaterialName(name string) string {
	return NamePrefix + name
}

// Builder builds materials into a host.
type Builder struct {
	host    Host
	catalog *graphapi.NodeObjects
	logger  *zap.Logger
}

// NewBuilder creates a Builder. logger may be nil.
func NewBuilder(host Host, logger *zap.Logger) *Builder {
	return &Builder{
		host:    host,
		catalog: graphapi.DefaultNodeObjects(),
		logger:  logging.OrNop(logger),
	}
}

// CheckTarget returns the object a material would be attached to, or a
// *HostGraphError when there is none or it cannot hold materials.
func (b *Builder) CheckTarget() (Object, error) {
	obj := b.host.ActiveObject()
	if obj == nil {
		return nil, &HostGraphError{Reason: "no active object"}
	}
	if !obj.AcceptsMaterials() {
		return nil, &HostGraphError{Object: obj.Name(), Reason: "object cannot hold materials"}
	}
	return obj, nil
}

// VerifyArtifacts checks that every map of the set named name exists under
// artifactDir and decodes as an image.
func VerifyArtifacts(artifactDir, name string) ([]Image, error) {
	dir := filepath.Join(artifactDir, name)
	images := make([]Image, 0, len(Maps))
	for _, m := range Maps {
		path := filepath.Join(dir, m.File())
		img, err := loadImage(path, m)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func loadImage(path string, m Map) (Image, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Image{}, &MissingArtifactError{Map: m.Key, File: path}
	}
	if err != nil {
		return Image{}, &InvalidArtifactError{File: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return Image{}, &InvalidArtifactError{File: path, Err: err}
	}
	return Image{Map: m.Key, Name: m.Label, Path: path, ColorSpace: m.ColorSpace, Width: cfg.Width, Height: cfg.Height}, nil
}

type samplerSpec struct {
	key      string
	nodeName string
	pos      graphapi.Pos
}

var samplers = []samplerSpec{
	{"basecolor", "DiffuseNode", graphapi.Pos{X: -200, Y: 300}},
	{"metallic", "MetallicNode", graphapi.Pos{X: -200, Y: 250}},
	{"roughness", "RoughnessNode", graphapi.Pos{X: -200, Y: 200}},
	{"normal", "NormalNode", graphapi.Pos{X: -250, Y: 100}},
	{"height", "HeightNode", graphapi.Pos{X: 300, Y: 100}},
}

// Build builds material M_MF_<name> from the texture set under
// artifactDir/name and assigns it to slot 0 of the active object. Nothing is
// changed in the host when an error is returned.
func (b *Builder) Build(artifactDir, name string) (*Material, error) {
	obj, err := b.CheckTarget()
	if err != nil {
		return nil, err
	}
	images, err := VerifyArtifacts(artifactDir, name)
	if err != nil {
		return nil, err
	}

	mat, err := b.assemble(MaterialName(name), images)
	if err != nil {
		return nil, err
	}

	if err := obj.SetMaterial(0, mat); err != nil {
		return nil, err
	}
	b.host.AddMaterial(mat)
	b.logger.Info("material attached",
		zap.String("material", mat.Name),
		zap.String("object", obj.Name()),
		zap.Int("nodes", len(mat.Graph.Nodes)),
		zap.Int("links", len(mat.Graph.Links)),
	)
	return mat, nil
}

// NewMaterialGraph returns a graph holding only the default BSDF connected
// to the material output.
func NewMaterialGraph(catalog *graphapi.NodeObjects) (*graphapi.Graph, error) {
	g := graphapi.NewGraph(catalog)
	bsdf, err := g.AddNode(graphapi.TypeBsdfPrincipled, BsdfNodeName, graphapi.Pos{X: 10, Y: 300})
	if err != nil {
		return nil, err
	}
	out, err := g.AddNode(graphapi.TypeOutputMaterial, OutputNodeName, graphapi.Pos{X: 300, Y: 300})
	if err != nil {
		return nil, err
	}
	if _, err := g.Connect(bsdf, "BSDF", out, "Surface"); err != nil {
		return nil, err
	}
	return g, nil
}

func (b *Builder) assemble(matName string, images []Image) (*Material, error) {
	g, err := NewMaterialGraph(b.catalog)
	if err != nil {
		return nil, err
	}
	bsdf := g.GetNodeWithName(BsdfNodeName)
	out := g.GetNodeWithName(OutputNodeName)
	baseNodes, baseLinks := len(g.Nodes), len(g.Links)

	byKey := make(map[string]Image, len(images))
	for _, img := range images {
		byKey[img.Map] = img
	}

	nodes := make(map[string]*graphapi.GraphNode, len(samplers))
	for _, s := range samplers {
		n, err := g.AddNode(graphapi.TypeTexImage, s.nodeName, s.pos)
		if err != nil {
			return nil, err
		}
		n.Hide = true
		img := byKey[s.key]
		n.Label = img.Name
		n.SetProperty("image", img.Path)
		n.SetProperty("image_name", img.Name)
		n.SetProperty("colorspace", img.ColorSpace)
		nodes[s.key] = n
	}
	normalMap, err := g.AddNode(graphapi.TypeNormalMap, "NormalShaderNode", graphapi.Pos{X: -200, Y: 150})
	if err != nil {
		return nil, err
	}
	normalMap.Hide = true
	displacement, err := g.AddNode(graphapi.TypeDisplacement, "DisplacementNode", graphapi.Pos{X: 350, Y: 150})
	if err != nil {
		return nil, err
	}
	displacement.Hide = true

	wires := []struct {
		from   *graphapi.GraphNode
		output string
		to     *graphapi.GraphNode
		input  string
	}{
		{nodes["basecolor"], "Color", bsdf, "Base Color"},
		{nodes["normal"], "Color", normalMap, "Color"},
		{normalMap, "Normal", bsdf, "Normal"},
		{nodes["roughness"], "Color", bsdf, "Roughness"},
		{nodes["height"], "Color", displacement, "Height"},
		{nodes["metallic"], "Color", bsdf, "Metallic"},
		{displacement, "Displacement", out, "Displacement"},
	}
	for _, w := range wires {
		if _, err := g.Connect(w.from, w.output, w.to, w.input); err != nil {
			return nil, fmt.Errorf("wiring %s: %w", matName, err)
		}
	}

	return &Material{
		Name:         matName,
		Graph:        g,
		Images:       images,
		CreatedNodes: len(g.Nodes) - baseNodes,
		CreatedLinks: len(g.Links) - baseLinks,
	}, nil
}
