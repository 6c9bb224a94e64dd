package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"digital.vasic.mobileqa/pkg/suite"
)

func validateCmd() *cobra.Command {
	var tests string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a test suite without running it",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSuite(tests)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			problems := s.Validate()
			for _, p := range problems {
				fmt.Fprintln(out, p.Error())
			}
			if len(problems) > 0 {
				return exitCodeError{code: 1}
			}
			fmt.Fprintf(out, "%d tests OK (%s)\n",
				len(s.Tests), strings.Join(s.Sources, ", "))
			return nil
		},
	}

	cmd.Flags().StringVarP(&tests, "tests", "t", "",
		"Suite file or glob (** allowed)")
	_ = cmd.MarkFlagRequired("tests")
	return cmd
}

// loadSuite loads a single file, or every match when path is a
// glob pattern.
func loadSuite(path string) (*suite.Suite, error) {
	if strings.ContainsAny(path, "*?[{") {
		return suite.LoadGlob(path)
	}
	return suite.Load(path)
}

// checkSuite returns the suite's validation problems as one error.
func checkSuite(s *suite.Suite) error {
	problems := s.Validate()
	if len(problems) == 0 {
		return nil
	}
	errs := make([]error, len(problems))
	for i, p := range problems {
		errs[i] = p
	}
	return fmt.Errorf("invalid suite: %w", errors.Join(errs...))
}
