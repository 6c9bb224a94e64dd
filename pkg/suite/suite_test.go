package suite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/qa"
)

const sample = `tests:
  - name: create_vault
    goal: "Open Obsidian, create a vault named InternVault and enter it"
    setup: ["App installed"]
    expected_result: PASS
  - name: print_pdf
    package: md.obsidian
    goal: "Print the note to PDF"
    expected_result: fail_action
    reason: "No print option exists"
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "qa_tests.yaml", sample)

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Tests, 2)
	assert.Equal(t, []string{"create_vault", "print_pdf"}, s.Names())

	first := s.Tests[0]
	assert.Equal(t, []string{"App installed"}, first.Setup)
	assert.Equal(t, qa.VerdictPass, first.ExpectedResult)
	assert.Equal(t, qa.DefaultPackage, first.AppPackage())

	assert.Equal(t, qa.VerdictFailAction, s.Tests[1].ExpectedResult, "verdicts are normalized")
	assert.Equal(t, "No print option exists", s.Tests[1].Reason)
	assert.Equal(t, []string{path}, s.Sources)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "suite.json",
		`{"tests":[{"name":"a","goal":"open settings","apk_path":"app.apk"}]}`)

	s, err := Load(path)
	require.NoError(t, err)
	require.Len(t, s.Tests, 1)
	assert.Equal(t, "app.apk", s.Tests[0].APKPath)
	assert.Equal(t, qa.VerdictPass, s.Tests[0].Expected())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("/nonexistent/suite.yaml")
	assert.Error(t, err)

	path := writeFile(t, t.TempDir(), "bad.yaml", "tests: [unclosed")
	_, err = Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse suite file")
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b/nested/two.yaml", "tests:\n  - name: two\n    goal: g\n")
	writeFile(t, dir, "a/one.yaml", "tests:\n  - name: one\n    goal: g\n")
	writeFile(t, dir, "a/notes.txt", "ignored")

	s, err := LoadGlob(filepath.Join(dir, "**", "*.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, s.Names())
	assert.Len(t, s.Sources, 2)

	_, err = LoadGlob(filepath.Join(dir, "**", "*.yml"))
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestSuite_Filter(t *testing.T) {
	s, err := Load(writeFile(t, t.TempDir(), "s.yaml", sample))
	require.NoError(t, err)

	one, err := s.Filter("print_pdf")
	require.NoError(t, err)
	assert.Equal(t, []string{"print_pdf"}, one.Names())

	_, err = s.Filter("missing")
	assert.ErrorIs(t, err, ErrTestNotFound)
}

func TestSuite_OverrideAPK(t *testing.T) {
	s := &Suite{Tests: []qa.TestCase{{Name: "a", APKPath: "old.apk"}, {Name: "b"}}}
	s.OverrideAPK("new.apk")
	for _, tc := range s.Tests {
		assert.Equal(t, "new.apk", tc.APKPath)
	}
}
