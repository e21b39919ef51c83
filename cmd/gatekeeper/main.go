package main

import "github.com/courseforge/gatekeeper/cmd/gatekeeper/cmd"

func main() {
	cmd.Execute()
}
