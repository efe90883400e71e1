package main

import "github.com/oshokin/heat-sentinel/cmd/heat-sentinel/cmd"

func main() {
	cmd.Execute()
}
