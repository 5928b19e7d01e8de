package main

import "chassis-cli/cmd"

func main() {
	cmd.Execute()
}
