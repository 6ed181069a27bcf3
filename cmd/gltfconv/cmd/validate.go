package cmd

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-gltf/engine/loader"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <input>",
	Short: "Check a model against the glTF schema",
	Long: `Decode a model and check its document against the glTF 2.0 schema and the
binary layout rules. Every violation is printed; the command fails when any is found.

Examples:
  gltfconv validate model.glb`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := loadInput(args[0])
		if err != nil {
			return err
		}

		violations, err := loader.Validate(res.Document)
		if err != nil {
			return err
		}
		if len(violations) == 0 {
			fmt.Printf("%s: valid\n", args[0])
			return nil
		}

		for _, v := range violations {
			fmt.Println(v)
		}
		return fmt.Errorf("%s: %d violations", args[0], len(violations))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
