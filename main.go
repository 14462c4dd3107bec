package main

import "github.com/agentic-research/attrgraph/cmd"

func main() {
	cmd.Execute()
}
