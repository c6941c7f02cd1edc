//go:build mage

// Package main contains Mage build targets for dpsprep developer tooling.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binDir  = "bin"
	binName = "dpsprep"
	cmdPkg  = "./cmd/dpsprep"
)

// externalTools lists the programs a conversion shells out to.
var externalTools = []string{"ddjvu", "djvused", "djvu2hocr", "pdfbeads", "pdftk"}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Tools reports which external conversion programs are on PATH.
func Tools() error {
	var missing []string
	for _, bin := range externalTools {
		path, err := exec.LookPath(bin)
		if err != nil {
			missing = append(missing, bin)
			fmt.Printf("  %-10s missing\n", bin)
			continue
		}
		fmt.Printf("  %-10s %s\n", bin, path)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing tools: %v (install djvulibre, ocrodjvu, pdfbeads and pdftk)", missing)
	}
	return nil
}

// All builds and tests the project.
func All() error {
	mg.SerialDeps(Test, Build)
	return nil
}

// Stats prints non-blank Go line counts for production code and tests.
func Stats() error {
	var prod, tests int
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		n, err := nonBlankLines(path)
		if err != nil {
			return err
		}
		if strings.HasSuffix(path, "_test.go") {
			tests += n
		} else {
			prod += n
		}
		return nil
	})
	if err != nil {
		return err
	}

	fmt.Printf("Lines of code (Go, production): %d\n", prod)
	fmt.Printf("Lines of code (Go, tests):      %d\n", tests)
	return nil
}

func nonBlankLines(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}
	n := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n, nil
}
