package main

import "ephys-cam/cmd/rigctl/commands"

func main() {
	commands.Execute()
}
