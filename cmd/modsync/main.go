package main

import "github.com/oshokin/modsync/cmd/modsync/cmd"

func main() {
	cmd.Execute()
}
