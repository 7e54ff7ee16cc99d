package main

import "github.com/LINBIT/lcmc/cmd"

func main() {
	cmd.Execute()
}
