package main

import "github.com/Carmen-Shannon/oxy-gltf/cmd/gltfconv/cmd"

func main() {
	cmd.Execute()
}
