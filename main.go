// The main package for the discovery executable.
package main

import (
	"github.com/JakeFAU/insight-discovery/cmd"
)

func main() {
	cmd.Execute()
}
