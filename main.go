package main

import "resub/cmd"

func main() {
	cmd.Execute()
}
