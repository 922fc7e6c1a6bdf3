package material

import (
	"fmt"
	"sort"
	"sync"
)

// Host is the part of the 3D application a material is attached to.
type Host interface {
	// ActiveObject returns the selected object, or nil when none is.
	ActiveObject() Object
	// AddMaterial registers m in the host's material library, replacing a
	// material of the same name.
	AddMaterial(m *Material)
}

// Object is a scene object with material slots.
type Object interface {
	Name() string
	// AcceptsMaterials reports whether the object's data can hold materials.
	AcceptsMaterials() bool
	// SetMaterial assigns m to slot, creating the slot when the object has
	// none yet.
	SetMaterial(slot int, m *Material) error
	Material(slot int) *Material
}

// Scene is an in-memory Host.
type Scene struct {
	mu        sync.Mutex
	objects   map[string]*SceneObject
	active    string
	materials map[string]*Material
}

func NewScene() *Scene {
	return &Scene{
		objects:   make(map[string]*SceneObject),
		materials: make(map[string]*Material),
	}
}

// AddObject adds an object. Mesh-like objects accept materials; empties and
// lights do not.
func (s *Scene) AddObject(name string, acceptsMaterials bool) *SceneObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := &SceneObject{name: name, accepts: acceptsMaterials}
	s.objects[name] = o
	return o
}

// Select makes the named object active. An empty name clears the selection.
func (s *Scene) Select(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name != "" {
		if _, ok := s.objects[name]; !ok {
			return fmt.Errorf("no object named %q", name)
		}
	}
	s.active = name
	return nil
}

func (s *Scene) ActiveObject() Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[s.active]
	if !ok {
		return nil
	}
	return o
}

func (s *Scene) AddMaterial(m *Material) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[m.Name] = m
}

// Material returns the library material with the given name, or nil.
func (s *Scene) Material(name string) *Material {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.materials[name]
}

// MaterialNames lists the material library, sorted.
func (s *Scene) MaterialNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.materials))
	for k := range s.materials {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SceneObject is an Object of a Scene.
type SceneObject struct {
	mu      sync.Mutex
	name    string
	accepts bool
	slots   []*Material
}

func (o *SceneObject) Name() string { return o.name }

func (o *SceneObject) AcceptsMaterials() bool { return o.accepts }

func (o *SceneObject) SetMaterial(slot int, m *Material) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.accepts {
		return &HostGraphError{Object: o.name, Reason: "object cannot hold materials"}
	}
	if slot < 0 || slot > len(o.slots) {
		return fmt.Errorf("material slot %d out of range (%d slots)", slot, len(o.slots))
	}
	if slot == len(o.slots) {
		o.slots = append(o.slots, m)
		return nil
	}
	o.slots[slot] = m
	return nil
}

func (o *SceneObject) Material(slot int) *Material {
	o.mu.Lock()
	defer o.mu.Unlock()
	if slot < 0 || slot >= len(o.slots) {
		return nil
	}
	return o.slots[slot]
}

// Slots is the number of material slots.
func (o *SceneObject) Slots() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.slots)
}
