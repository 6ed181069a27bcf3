package cmd

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/Carmen-Shannon/oxy-gltf/engine/model"
	"github.com/Carmen-Shannon/oxy-gltf/engine/scene"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <input>",
	Short: "Print the scene graph of a model",
	Long: `Print the scene graph of a model: its node tree, the geometry each node shows,
the world-space bounds of everything drawn and a summary of the decoded document.

Examples:
  gltfconv inspect model.glb
  gltfconv inspect model.gltf --merge-primitives`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		merge, _ := cmd.Flags().GetBool("merge-primitives")
		res, err := loadInput(args[0], loader.WithDecodeMergePrimitives(merge))
		if err != nil {
			return err
		}
		doc := res.Document
		sc := res.Scene

		fmt.Printf("Scene: %s\n", sc.Name())
		if units := sc.Units(); units != "" {
			fmt.Printf("Units: %s\n", units)
		}
		fmt.Printf("Generator: %s (glTF %s)\n", doc.Asset.Generator, doc.Asset.Version)
		fmt.Printf("Nodes: %d  Meshes: %d  Materials: %d  Textures: %d  Buffers: %d\n",
			len(doc.Nodes), len(doc.Meshes), len(doc.Materials), len(doc.Textures), len(doc.Buffers))
		if sc.HasCamera() {
			cam := sc.Camera()
			fmt.Printf("Camera: %s on node %s (fov %.3f, near %g, far %g)\n",
				cam.Name(), sc.CameraNode(), cam.Fov(), cam.Near(), cam.Far())
		}

		geomNodes := sc.NodesGeometry()
		fmt.Printf("Geometry nodes: %d\n", len(geomNodes))
		if bmin, bmax, ok := worldBounds(sc, geomNodes); ok {
			fmt.Printf("Bounds: [%g %g %g] to [%g %g %g]\n", bmin[0], bmin[1], bmin[2], bmax[0], bmax[1], bmax[2])
		}

		fmt.Println()
		printNode(sc, sc.Root(), 0)

		if len(res.Warnings) > 0 {
			fmt.Printf("\n%d warnings:\n", len(res.Warnings))
			for _, w := range res.Warnings {
				fmt.Printf("  - %s\n", w)
			}
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().Bool("merge-primitives", false, "merge the primitives of each mesh into one geometry")
	rootCmd.AddCommand(inspectCmd)
}

func printNode(sc scene.Scene, name string, depth int) {
	n, ok := sc.Node(name)
	if !ok {
		return
	}

	line := strings.Repeat("  ", depth) + name
	if n.Geometry != "" {
		line += " -> " + describeGeometry(sc.Geometry(n.Geometry))
	}
	fmt.Println(line)

	for _, c := range n.Children {
		printNode(sc, c, depth+1)
	}
}

func describeGeometry(g *model.Geometry) string {
	if g == nil {
		return "(missing geometry)"
	}

	mode := "triangles"
	if g.Mode == model.ModePoints {
		mode = "points"
	}
	s := fmt.Sprintf("%s [%s, %d vertices", g.Name, mode, g.VertexCount())
	if len(g.Indices) > 0 {
		s += fmt.Sprintf(", %d indices", len(g.Indices))
	}
	if len(g.Groups) > 0 {
		s += fmt.Sprintf(", %d groups", len(g.Groups))
	}
	if len(g.VertexAttributes) > 0 {
		s += fmt.Sprintf(", %d custom attributes", len(g.VertexAttributes))
	}
	if g.Material != nil && g.Material.Name() != "" {
		s += ", material " + g.Material.Name()
	}
	return s + "]"
}

// worldBounds returns the world-space axis-aligned box around the geometry of the given nodes.
// ok is false when none of them has vertices.
func worldBounds(sc scene.Scene, nodes []string) (bmin, bmax [3]float32, ok bool) {
	for _, name := range nodes {
		n, found := sc.Node(name)
		if !found {
			continue
		}
		g := sc.Geometry(n.Geometry)
		if g == nil || g.VertexCount() == 0 {
			continue
		}

		lo, hi := g.Bounds()
		w := sc.WorldTransform(name)
		for c := range 8 {
			p := [3]float32{lo[0], lo[1], lo[2]}
			if c&1 != 0 {
				p[0] = hi[0]
			}
			if c&2 != 0 {
				p[1] = hi[1]
			}
			if c&4 != 0 {
				p[2] = hi[2]
			}
			for i := range 3 {
				v := w[i]*p[0] + w[4+i]*p[1] + w[8+i]*p[2] + w[12+i]
				if !ok {
					bmin[i], bmax[i] = v, v
					continue
				}
				bmin[i] = min(bmin[i], v)
				bmax[i] = max(bmax[i], v)
			}
			ok = true
		}
	}
	return bmin, bmax, ok
}
