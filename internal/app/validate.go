package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	sourceschema "horse.fit/finnews/schema"
)

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	file := fs.String("file", "sources.json", "Path to the feed source list JSON file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	path := strings.TrimSpace(*file)
	if path == "" {
		fmt.Fprintln(os.Stderr, "--file must not be empty")
		return 2
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation setup failed: %v\n", err)
		return 1
	}

	sources, err := sourceschema.ValidateSourceList(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID %s: %v\n", path, err)
		return 1
	}

	for _, source := range sources {
		kind := source.Kind
		if kind == "" {
			kind = "rss"
		}
		fmt.Printf("ok: %s (%s) %s\n", source.Name, kind, source.URL)
	}
	fmt.Printf("validate file=%s sources=%d\n", path, len(sources))
	return 0
}
