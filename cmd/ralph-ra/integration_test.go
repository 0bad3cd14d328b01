package main

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

var (
	darwinLabelRE = regexp.MustCompile(`(?m)^([a-zA-Z_][a-zA-Z0-9_.]*):`)
	darwinCallRE  = regexp.MustCompile(`callq\t([a-zA-Z_][a-zA-Z0-9_.]*)`)
)

// transformExpectedForDarwin adds the underscore prefix Darwin puts on
// symbols to an expected pattern
func transformExpectedForDarwin(exp string) string {
	if runtime.GOOS != "darwin" {
		return exp
	}
	exp = darwinLabelRE.ReplaceAllString(exp, `_$1:`)
	exp = darwinCallRE.ReplaceAllString(exp, "callq\t_$1")
	return exp
}

// E2ETestSpec represents a single end-to-end test case
type E2ETestSpec struct {
	Name         string   `yaml:"name"`
	Input        string   `yaml:"input"`
	Args         []string `yaml:"args"`          // Extra command line arguments
	Expect       []string `yaml:"expect"`        // Strings that must appear in output
	ExpectOrder  []string `yaml:"expect_order"`  // Strings that must appear in this order
	ExpectUnique []string `yaml:"expect_unique"` // Strings that must appear exactly once
	ExpectNot    []string `yaml:"expect_not"`    // Strings that must NOT appear in output
	ExpectError  string   `yaml:"expect_error"`  // Substring of the expected diagnostic
	Skip         string   `yaml:"skip,omitempty"`
}

// E2ETestFile represents the e2e.yaml file structure
type E2ETestFile struct {
	Tests []E2ETestSpec `yaml:"tests"`
}

// TestE2EYAML runs unit files through the whole command using yaml test cases
func TestE2EYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/e2e.yaml")
	if err != nil {
		t.Fatalf("e2e.yaml not found: %v", err)
	}

	var testFile E2ETestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse e2e.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("e2e.yaml has no tests")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			unitFile := filepath.Join(tmpDir, "test.yaml")
			if err := os.WriteFile(unitFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			resetFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			cmd.SetArgs(append(append([]string{}, tc.Args...), unitFile))
			err := cmd.Execute()

			if tc.ExpectError != "" {
				if err == nil {
					t.Fatalf("expected failure containing %q\nGot:\n%s", tc.ExpectError, out.String())
				}
				if !strings.Contains(errOut.String(), tc.ExpectError) {
					t.Errorf("expected diagnostic to contain %q, got %q", tc.ExpectError, errOut.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("ralph-ra failed: %v\nStderr: %s", err, errOut.String())
			}

			output := out.String()
			for _, exp := range tc.Expect {
				exp = transformExpectedForDarwin(exp)
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}

			if len(tc.ExpectOrder) > 0 {
				lastIdx := -1
				for _, exp := range tc.ExpectOrder {
					exp = transformExpectedForDarwin(exp)
					idx := strings.Index(output[lastIdx+1:], exp)
					if idx == -1 {
						t.Errorf("expected %q after position %d\nGot:\n%s", exp, lastIdx, output)
						continue
					}
					lastIdx += idx + 1
				}
			}

			for _, exp := range tc.ExpectUnique {
				exp = transformExpectedForDarwin(exp)
				if count := strings.Count(output, exp); count != 1 {
					t.Errorf("expected %q to appear exactly once, found %d times\nGot:\n%s", exp, count, output)
				}
			}

			for _, exp := range tc.ExpectNot {
				exp = transformExpectedForDarwin(exp)
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}
