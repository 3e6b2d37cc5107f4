package main

import "github.com/marmos91/gridinv/cmd/gridinv/cmd"

func main() {
	cmd.Execute()
}
