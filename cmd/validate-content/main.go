// Package main provides a content pack validator for authoring workflows.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cory-johannsen/darklord/internal/content"
)

func main() {
	dir := flag.String("dir", "content", "path to content pack directory")
	flag.Parse()

	start := time.Now()
	pack, err := content.Load(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("pack %q valid: %d abilities, %d statuses, %d enemies, %d encounters [%s]\n",
		pack.Version,
		pack.Abilities.Len(), pack.Statuses.Len(),
		len(pack.Enemies), len(pack.Encounters),
		time.Since(start).Round(time.Millisecond),
	)
	if pack.HookDir != "" {
		fmt.Printf("hooks: %s\n", pack.HookDir)
	}
}
