package main

import "github.com/opnsec/yhsm-go/cmd"

func main() {
	cmd.Execute()
}
