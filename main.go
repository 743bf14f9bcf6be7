// The main package for the cw2dt executable.
package main

import (
	"github.com/RandyNorthrup/Clone-Website-to-Docker-Tool/cmd"
)

func main() {
	cmd.Execute()
}
