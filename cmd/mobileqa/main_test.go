package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digital.vasic.mobileqa/pkg/config"
	"digital.vasic.mobileqa/pkg/qa"
	"digital.vasic.mobileqa/pkg/runner"
)

const suiteYAML = `tests:
  - name: create_vault
    goal: "Create a vault named InternVault"
    expected_result: PASS
  - name: print_pdf
    goal: "Print the note to PDF"
    expected_result: FAIL_ACTION
`

func writeSuite(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "qa_tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "mobileqa version "+Version)
}

func TestRunOptions_ApplyOnlyChangedFlags(t *testing.T) {
	o := &runOptions{}
	cmd := newRunCmd(o)
	require.NoError(t, cmd.ParseFlags([]string{
		"--device", "emulator-5556",
		"--max-steps", "5",
		"--timeout", "2m",
		"--reset-app",
		"--provider", "openai",
	}))

	cfg := config.DefaultConfig()
	cfg.Model.Name = "from-file"
	cfg.Artifacts.Dir = "out"
	o.apply(cmd, cfg)

	assert.Equal(t, "emulator-5556", cfg.Device.Serial)
	assert.Equal(t, 5, cfg.Run.MaxSteps)
	assert.Equal(t, 2*time.Minute, cfg.Run.Timeout)
	assert.True(t, cfg.Run.ResetApp)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.Equal(t, "from-file", cfg.Model.Name, "unset flag keeps config")
	assert.Equal(t, "out", cfg.Artifacts.Dir)
}

func TestRunOptions_LoadTests(t *testing.T) {
	path := writeSuite(t, suiteYAML)
	cfg := config.DefaultConfig()
	cfg.Run.APKPath = "custom.apk"

	o := &runOptions{tests: path, singleTest: "print_pdf"}
	s, err := o.loadTests(cfg)
	require.NoError(t, err)
	require.Len(t, s.Tests, 1)
	assert.Equal(t, "print_pdf", s.Tests[0].Name)
	assert.Equal(t, "custom.apk", s.Tests[0].APKPath)

	o.singleTest = "missing"
	_, err = o.loadTests(cfg)
	assert.Error(t, err)
}

func TestRunOptions_LoadTestsGlob(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(suiteYAML), 0644))

	o := &runOptions{tests: filepath.Join(dir, "*.yaml")}
	s, err := o.loadTests(config.DefaultConfig())
	require.NoError(t, err)
	assert.Len(t, s.Tests, 2)
}

func TestRunOptions_LoadTestsRejectsInvalidSuite(t *testing.T) {
	path := writeSuite(t, "tests:\n  - name: no_goal\n")
	o := &runOptions{tests: path}
	_, err := o.loadTests(config.DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "goal")
}

func TestRun_RequiresAPIKey(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	path := writeSuite(t, suiteYAML)

	_, err := execute(t, "run",
		"-t", path,
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--artifacts", t.TempDir(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

func TestRun_RequiresTestsFlag(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "-t", writeSuite(t, suiteYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "2 tests OK")

	out, err = execute(t, "validate", "-t", writeSuite(t, "tests:\n  - goal: nameless\n"))
	var exit exitCodeError
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, out, "name")
}

func TestPrintSummary(t *testing.T) {
	s := &runner.SuiteResult{
		Results: []*qa.TestResult{
			{TestName: "create_vault", Verdict: qa.VerdictPass, Reason: "Test goal achieved", ExpectedResult: qa.VerdictPass, MatchedExpect: true},
			{TestName: "print_pdf", Verdict: qa.VerdictFailAssertion, Reason: "no PDF", ExpectedResult: qa.VerdictFailAction},
		},
		Passed:          1,
		FailedAssertion: 1,
		Matched:         1,
	}

	var out bytes.Buffer
	printSummary(&out, s, false)
	text := out.String()

	assert.Contains(t, text, "TEST SUMMARY")
	assert.Contains(t, text, "create_vault: PASS - Test goal achieved\n")
	assert.Contains(t, text, "print_pdf: FAIL_ASSERTION - no PDF (expected FAIL_ACTION)")
	assert.Contains(t, text, "Total: 2 tests")
	assert.Contains(t, text, "FAIL (Assertion): 1")
	assert.Contains(t, text, "Matched expectation: 1/2")
	assert.Equal(t, 1, s.ExitCode())
}

func TestConfigShow(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	out, err := execute(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "serial:")
}

func TestConfigInit(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	out, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, home)
}
