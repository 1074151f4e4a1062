package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

// TestMain lets `go test` invoke this binary's own main() under the `ms`
// program name inside each testscript transcript (rogpeppe/go-internal's
// documented self-exec pattern), so testdata/script/*.txt drive the real
// CLI rather than a mock.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"ms": run,
	}))
}

func run() int {
	main()
	return 0
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "../../testdata/script",
	})
}
