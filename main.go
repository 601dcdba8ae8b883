// The main package for the edgar-harvester executable.
package main

import (
	"github.com/sayouzone/edgar-harvester/cmd"
)

func main() {
	cmd.Execute()
}
