package main

import "learnplay/cmd"

func main() {
	cmd.Execute()
}
