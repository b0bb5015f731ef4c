package main

import "github.com/notargets/gofmm/cmd"

func main() {
	cmd.Execute()
}
