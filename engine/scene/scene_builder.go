package scene

import (
	"maps"

	"github.com/Carmen-Shannon/oxy-gltf/common"
	"github.com/Carmen-Shannon/oxy-gltf/engine/camera"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithName sets the scene's identifier.
//
// Parameters:
//   - name: the scene name
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithName(name string) SceneBuilderOption {
	return func(s *scene) {
		s.name = name
	}
}

// WithUnits sets the scene's declared length unit.
//
// Parameters:
//   - units: the unit name (e.g. "m", "mm")
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithUnits(units string) SceneBuilderOption {
	return func(s *scene) {
		s.units = units
	}
}

// WithMetadata seeds the scene's metadata bag with a shallow copy of md.
//
// Parameters:
//   - md: the initial metadata
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithMetadata(md map[string]any) SceneBuilderOption {
	return func(s *scene) {
		maps.Copy(s.metadata, md)
	}
}

// WithRoot renames the root node. Defaults to DefaultRoot.
//
// Parameters:
//   - name: the root node name
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithRoot(name string) SceneBuilderOption {
	return func(s *scene) {
		if name != "" {
			s.root = name
		}
	}
}

// WithCamera attaches a camera to the scene, which counts as materializing it.
//
// Parameters:
//   - cam: the camera
//   - node: the node the camera hangs off, "" for DefaultCameraNode
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCamera(cam camera.Camera, node string) SceneBuilderOption {
	return func(s *scene) {
		s.cam = cam
		s.cameraNode = common.Coalesce(node, DefaultCameraNode)
	}
}

// nodeConfig collects the NodeOption values for AddNode and AddGeometry.
type nodeConfig struct {
	name       string
	parentName string
	transform  [16]float32
	geometry   string
	extras     map[string]any
}

// NodeOption is a functional option for a node added to a Scene.
type NodeOption func(c *nodeConfig)

func newNodeConfig(options []NodeOption) *nodeConfig {
	c := &nodeConfig{transform: common.IdentityMatrix()}
	for _, option := range options {
		option(c)
	}
	return c
}

// parent returns the configured parent or root when none was given.
func (c *nodeConfig) parent(root string) string {
	return common.Coalesce(c.parentName, root)
}

// WithNodeName sets the name of the node created by AddGeometry.
//
// Parameters:
//   - name: the node name
//
// Returns:
//   - NodeOption: option function to apply
func WithNodeName(name string) NodeOption {
	return func(c *nodeConfig) {
		c.name = name
	}
}

// WithParent attaches the node under parent instead of the root.
//
// Parameters:
//   - parent: the parent node name
//
// Returns:
//   - NodeOption: option function to apply
func WithParent(parent string) NodeOption {
	return func(c *nodeConfig) {
		c.parentName = parent
	}
}

// WithTransform sets the node's local transform (column-major).
//
// Parameters:
//   - m: the local transform
//
// Returns:
//   - NodeOption: option function to apply
func WithTransform(m [16]float32) NodeOption {
	return func(c *nodeConfig) {
		c.transform = m
	}
}

// WithGeometry makes the node instance an existing geometry.
//
// Parameters:
//   - name: the geometry name
//
// Returns:
//   - NodeOption: option function to apply
func WithGeometry(name string) NodeOption {
	return func(c *nodeConfig) {
		c.geometry = name
	}
}

// WithExtras attaches an extras bag to the node.
//
// Parameters:
//   - extras: the application-defined values
//
// Returns:
//   - NodeOption: option function to apply
func WithExtras(extras map[string]any) NodeOption {
	return func(c *nodeConfig) {
		c.extras = extras
	}
}
