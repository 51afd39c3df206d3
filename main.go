package main

import "github.com/mpapenbr/racegrid/cmd"

func main() {
	cmd.Execute()
}
