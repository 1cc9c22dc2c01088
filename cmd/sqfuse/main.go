package main

import "github.com/absfs/sqfuse/cmd/sqfuse/cmd"

func main() {
	cmd.Execute()
}
