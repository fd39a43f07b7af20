package main

import "github.com/Giozar/distributed-systems/cmd/tcp-client/command"

func main() {
	command.Execute()
}
