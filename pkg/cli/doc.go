/*
Package cli provides the helpers shared by the corsgate commands.

Output Formatting:

Command results print as text, JSON or CSV. Values implementing Table are
rendered as aligned columns in text mode and as rows in CSV mode; anything
else falls back to fmt or encoding/json:

	formatter, err := cli.NewFormatter(cli.OutputFormat(flagFormat))
	if err != nil {
		return err
	}
	if err := formatter.FormatTo(cmd.OutOrStdout(), result); err != nil {
		return err
	}

Exit Codes:

A command that must fail with a specific status returns an ExitError;
main passes its Code to os.Exit.

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
