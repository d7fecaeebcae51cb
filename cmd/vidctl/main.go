package main

import "go.pilab.hu/vident/cmd/vidctl/cmd"

func main() {
	cmd.Execute()
}
