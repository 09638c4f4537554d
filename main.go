package main

import "github.com/radiofrance/rollo/cmd"

func main() {
	cmd.Execute()
}
