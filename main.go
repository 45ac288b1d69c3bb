package main

import "AgentConsole/cmd"

func main() {
	cmd.Execute()
}
