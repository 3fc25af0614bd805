// Command settingsd serves scoped settings and the versioned catalogs over
// HTTP and offers a small client for the same API.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
