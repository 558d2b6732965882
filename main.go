package main

import "github.com/input-output-hk/jorup/cmd"

func main() {
	cmd.Execute()
}
