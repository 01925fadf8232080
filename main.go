package main

import "github.com/cansim/cansim/cmd"

func main() {
	cmd.Execute()
}
