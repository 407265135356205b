package main

import "github.com/oshokin/stop-the-game/cmd/stop-the-game/cmd"

func main() {
	cmd.Execute()
}
