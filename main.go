package main

import "github.com/cairnmed/lucent/cmd"

func main() {
	cmd.Execute()
}
