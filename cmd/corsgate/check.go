package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/corsgate/pkg/cli"
	"mercator-hq/corsgate/pkg/config"
)

// Exit codes of the check command.
const (
	exitPolicyInvalid  = 2
	exitFileUnreadable = 3
)

type checkOptions struct {
	policyFile string
	format     string
}

// checkReport is the result of assembling and validating a policy without
// publishing it.
type checkReport struct {
	Valid     bool                `json:"valid"`
	File      string              `json:"file,omitempty"`
	FileError string              `json:"fileError,omitempty"`
	Policy    config.Policy       `json:"policy"`
	Errors    []config.FieldError `json:"errors,omitempty"`
}

func (r checkReport) Header() []string {
	return []string{"FIELD", "VALUE"}
}

func (r checkReport) Rows() [][]string {
	p := r.Policy
	rows := [][]string{
		{"allowedOrigins", strings.Join(p.AllowedOrigins, ", ")},
		{"allowedMethods", strings.Join(p.AllowedMethods, ", ")},
		{"allowedHeaders", strings.Join(p.AllowedHeaders, ", ")},
		{"allowCredentials", strconv.FormatBool(p.AllowCredentials)},
		{"maxAge", strconv.Itoa(p.MaxAge)},
		{"developmentMode", strconv.FormatBool(p.DevelopmentMode)},
		{"debugMode", strconv.FormatBool(p.DebugMode)},
	}
	if r.FileError != "" {
		rows = append(rows, []string{"file error", r.FileError})
	}
	for _, e := range r.Errors {
		rows = append(rows, []string{"error", e.Error()})
	}
	return rows
}

func newCheckCmd() *cobra.Command {
	var opts checkOptions

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Assemble and validate the CORS policy",
		Long: `Assemble the CORS policy from the defaults, the policy file and the
environment exactly as the gateway would, validate it and print the result.

Unlike the gateway, check does not fall back to the default policy when the
assembled one is invalid: it reports the errors and exits with status 2.
An unreadable policy file exits with status 3.

Examples:
  # Check the environment alone
  ALLOWED_ORIGINS=https://app.example.com corsgate check

  # Check a policy file layered under the environment
  corsgate check --policy-file policy.yaml --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.policyFile, "policy-file", "p", "", "policy file (defaults to policy.file from the config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "output format (text, json, csv)")
	return cmd
}

func runCheck(cmd *cobra.Command, opts checkOptions) error {
	formatter, err := cli.NewFormatter(cli.OutputFormat(opts.format))
	if err != nil {
		return err
	}

	path := opts.policyFile
	if path == "" && cfgFile != "" {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile, config.OSLookup)
		if err != nil {
			return cli.NewConfigError("", err.Error())
		}
		path = cfg.Policy.File
	}

	report := checkPolicy(path, config.OSLookup)
	if err := formatter.FormatTo(cmd.OutOrStdout(), report); err != nil {
		return err
	}

	switch {
	case report.FileError != "":
		return &cli.ExitError{Code: exitFileUnreadable}
	case !report.Valid:
		return &cli.ExitError{Code: exitPolicyInvalid}
	}
	return nil
}

// checkPolicy assembles and validates the policy from path and lookup.
func checkPolicy(path string, lookup config.LookupFunc) checkReport {
	candidate, fileErr := config.AssemblePolicy(lookup, path)
	errs := config.ValidatePolicy(candidate)

	report := checkReport{
		Valid:  len(errs) == 0 && fileErr == nil,
		File:   path,
		Policy: candidate,
		Errors: errs,
	}
	if fileErr != nil {
		report.FileError = fileErr.Error()
	}
	return report
}
