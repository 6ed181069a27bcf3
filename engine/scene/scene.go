package scene

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/camera"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
)

const (
	// DefaultRoot is the name of the root node every scene starts with.
	DefaultRoot = "world"

	// DefaultCameraNode is the node a materialized camera is attached to unless told otherwise.
	DefaultCameraNode = "camera"
)

var (
	errNodeNotFound     = errors.New("node not found")
	errGeometryNotFound = errors.New("geometry not found")
)

// Node is a read-only snapshot of one node of the scene graph.
type Node struct {
	// Name is the unique node name.
	Name string

	// Parent is the parent node name, empty for the root.
	Parent string

	// Children are the child node names in insertion order.
	Children []string

	// Transform is the local 4x4 transform relative to the parent (column-major).
	Transform [16]float32

	// Geometry is the name of the referenced geometry, empty for pure transform nodes.
	Geometry string

	// Extras is the application-defined bag attached to the node, or to the parent edge.
	Extras map[string]any
}

type sceneNode struct {
	parent    string
	children  []string
	transform [16]float32
	geometry  string
	extras    map[string]any
}

// scene is the implementation of the Scene interface.
type scene struct {
	mu *sync.RWMutex

	name     string
	units    string
	metadata map[string]any

	root      string
	nodes     map[string]*sceneNode
	nodeOrder []string

	geometries    map[string]*model.Geometry
	geometryOrder []string

	cam        camera.Camera
	cameraNode string
}

// Scene is a transform tree of named nodes rooted at a single base frame. Nodes may reference
// geometry by name, so several nodes can instance the same geometry under different transforms.
// The scene also carries a declared unit, a free-form metadata bag and an optional camera.
// Thread-safe for concurrent access.
type Scene interface {
	// Name returns the scene's identifier.
	Name() string

	// SetName sets the scene's identifier.
	SetName(name string)

	// Units returns the declared length unit, or "" when the scene is unitless.
	Units() string

	// SetUnits sets the declared length unit (e.g. "m", "mm", "in").
	//
	// Parameters:
	//   - units: the unit name, "" to clear
	SetUnits(units string)

	// Metadata returns the scene's metadata bag. The map is live: writes are visible to the scene.
	// Exporters read the "extras" key as scene-level extras; importers fill "extras" and "document_extras".
	//
	// Returns:
	//   - map[string]any: the metadata bag
	Metadata() map[string]any

	// Root returns the name of the root node.
	Root() string

	// AddGeometry stores a geometry and adds a node that references it. The geometry name is made
	// unique by appending "_<n>" when it collides, and the node name defaults to the geometry name.
	//
	// Parameters:
	//   - g: the geometry to add
	//   - options: node options (name, parent, transform, extras)
	//
	// Returns:
	//   - string: the name of the created node
	//   - error: error if the parent does not exist or the geometry is invalid
	AddGeometry(g *model.Geometry, options ...NodeOption) (string, error)

	// AddNode adds a node under the root or the parent named in the options. Pass WithGeometry to
	// instance an existing geometry, otherwise the node is a pure transform node.
	//
	// Parameters:
	//   - name: the requested node name, made unique if it collides
	//   - options: node options
	//
	// Returns:
	//   - string: the actual node name
	//   - error: error if the parent or referenced geometry does not exist
	AddNode(name string, options ...NodeOption) (string, error)

	// Geometry returns the geometry stored under name, or nil.
	Geometry(name string) *model.Geometry

	// GeometryNames returns all geometry names in insertion order.
	GeometryNames() []string

	// Node returns a snapshot of the named node.
	//
	// Returns:
	//   - Node: the node snapshot
	//   - bool: false if no such node exists
	Node(name string) (Node, bool)

	// NodeNames returns all node names in insertion order, root first.
	NodeNames() []string

	// Children returns the child node names of name.
	Children(name string) []string

	// NodesGeometry returns the names of all nodes that reference a geometry.
	NodesGeometry() []string

	// SetTransform replaces the local transform of a node.
	//
	// Parameters:
	//   - name: the node name
	//   - m: the new local transform (column-major)
	//
	// Returns:
	//   - error: error if the node does not exist
	SetTransform(name string, m [16]float32) error

	// WorldTransform composes the local transforms from the root down to the named node.
	//
	// Returns:
	//   - [16]float32: the world transform, identity for unknown nodes
	WorldTransform(name string) [16]float32

	// HasCamera reports whether a camera has been materialized, by Camera() or SetCamera.
	HasCamera() bool

	// Camera returns the scene camera, creating a default camera on first access.
	Camera() camera.Camera

	// SetCamera replaces the scene camera. Passing nil removes it.
	//
	// Parameters:
	//   - cam: the new camera
	SetCamera(cam camera.Camera)

	// CameraNode returns the name of the node the camera is attached to.
	CameraNode() string

	// SetCameraNode sets the name of the node the camera is attached to.
	//
	// Parameters:
	//   - name: the node name
	SetCameraNode(name string)
}

// Ensure scene implements Scene interface.
var _ Scene = &scene{}

// NewScene creates an empty Scene containing only the root node.
//
// Parameters:
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the new scene
func NewScene(options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:         &sync.RWMutex{},
		metadata:   make(map[string]any),
		root:       DefaultRoot,
		nodes:      make(map[string]*sceneNode),
		geometries: make(map[string]*model.Geometry),
		cameraNode: DefaultCameraNode,
	}

	for _, option := range options {
		option(s)
	}

	s.nodes[s.root] = &sceneNode{transform: common.IdentityMatrix()}
	s.nodeOrder = append(s.nodeOrder, s.root)
	return s
}

func (s *scene) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

func (s *scene) SetName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
}

func (s *scene) Units() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.units
}

func (s *scene) SetUnits(units string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units = units
}

func (s *scene) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

func (s *scene) Root() string {
	return s.root
}

func (s *scene) AddGeometry(g *model.Geometry, options ...NodeOption) (string, error) {
	if g == nil {
		return "", fmt.Errorf("scene: nil geometry")
	}
	if err := g.Validate(); err != nil {
		return "", fmt.Errorf("scene: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := newNodeConfig(options)
	if _, ok := s.nodes[cfg.parent(s.root)]; !ok {
		return "", fmt.Errorf("scene: parent %q: %w", cfg.parentName, errNodeNotFound)
	}

	base := common.Coalesce(g.Name, fmt.Sprintf("geometry_%d", len(s.geometryOrder)))
	geomName := uniqueName(base, func(n string) bool { _, ok := s.geometries[n]; return ok })
	g.Name = geomName
	s.geometries[geomName] = g
	s.geometryOrder = append(s.geometryOrder, geomName)

	cfg.geometry = geomName
	return s.addNodeLocked(common.Coalesce(cfg.name, geomName), cfg), nil
}

func (s *scene) AddNode(name string, options ...NodeOption) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := newNodeConfig(options)
	if _, ok := s.nodes[cfg.parent(s.root)]; !ok {
		return "", fmt.Errorf("scene: parent %q: %w", cfg.parentName, errNodeNotFound)
	}
	if cfg.geometry != "" {
		if _, ok := s.geometries[cfg.geometry]; !ok {
			return "", fmt.Errorf("scene: %q: %w", cfg.geometry, errGeometryNotFound)
		}
	}

	return s.addNodeLocked(common.Coalesce(name, cfg.name, fmt.Sprintf("node_%d", len(s.nodeOrder))), cfg), nil
}

// addNodeLocked inserts a node. Caller must hold the write lock.
func (s *scene) addNodeLocked(name string, cfg *nodeConfig) string {
	name = uniqueName(name, func(n string) bool { _, ok := s.nodes[n]; return ok })
	parent := cfg.parent(s.root)

	s.nodes[name] = &sceneNode{
		parent:    parent,
		transform: cfg.transform,
		geometry:  cfg.geometry,
		extras:    cfg.extras,
	}
	s.nodes[parent].children = append(s.nodes[parent].children, name)
	s.nodeOrder = append(s.nodeOrder, name)
	return name
}

func (s *scene) Geometry(name string) *model.Geometry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.geometries[name]
}

func (s *scene) GeometryNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.geometryOrder)
}

func (s *scene) Node(name string) (Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	if !ok {
		return Node{}, false
	}
	return Node{
		Name:      name,
		Parent:    n.parent,
		Children:  slices.Clone(n.children),
		Transform: n.transform,
		Geometry:  n.geometry,
		Extras:    maps.Clone(n.extras),
	}, true
}

func (s *scene) NodeNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.nodeOrder)
}

func (s *scene) Children(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.nodes[name]; ok {
		return slices.Clone(n.children)
	}
	return nil
}

func (s *scene) NodesGeometry() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, name := range s.nodeOrder {
		if s.nodes[name].geometry != "" {
			out = append(out, name)
		}
	}
	return out
}

func (s *scene) SetTransform(name string, m [16]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok {
		return fmt.Errorf("scene: %q: %w", name, errNodeNotFound)
	}
	n.transform = m
	return nil
}

func (s *scene) WorldTransform(name string) [16]float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	world := common.IdentityMatrix()
	for cur, ok := s.nodes[name]; ok; cur, ok = s.nodes[cur.parent] {
		common.Mul4(world[:], cur.transform[:], world[:])
		if cur.parent == "" {
			break
		}
	}
	return world
}

func (s *scene) HasCamera() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cam != nil
}

func (s *scene) Camera() camera.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cam == nil {
		s.cam = camera.NewCamera()
	}
	return s.cam
}

func (s *scene) SetCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cam = cam
}

func (s *scene) CameraNode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cameraNode
}

func (s *scene) SetCameraNode(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameraNode = name
}

// uniqueName returns base, or base with the lowest "_<n>" suffix that is not taken.
func uniqueName(base string, taken func(string) bool) string {
	if !taken(base) {
		return base
	}
	for i := 1; ; i++ {
		if candidate := fmt.Sprintf("%s_%d", base, i); !taken(candidate) {
			return candidate
		}
	}
}
