package main

import "auth-rotation/cmd/client/cmd"

func main() {
	cmd.Execute()
}
