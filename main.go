package main

import "github.com/jmehdipour/holo/cmd"

func main() {
	cmd.Execute()
}
