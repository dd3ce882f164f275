package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/smazurov/kvsnode/internal/config"
	"github.com/smazurov/kvsnode/internal/credentials"
	"github.com/smazurov/kvsnode/internal/gstreamer"
	"github.com/spf13/cobra"
)

// CreateDescribeCmd creates the describe command, a dry run of stream that
// prints the pipeline description with secrets redacted.
func CreateDescribeCmd() *cobra.Command {
	var flags streamFlags

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the pipeline description for the given flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := flags.params()
			if errors.Is(err, ErrStreamNameRequired) {
				fmt.Fprintln(os.Stderr, "Error:", err)
				fmt.Fprint(os.Stderr, cmd.UsageString())
				os.Exit(exitUsage)
			}
			if err != nil {
				return err
			}

			description, err := describe(params.ToGstParams())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), description)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

// describe renders the description with the credential kind the runtime
// environment would select, without contacting the credential endpoint.
func describe(p gstreamer.Params) (string, error) {
	var creds credentials.Credentials = credentials.StaticKeys{AccessKeyID: "AKID", SecretAccessKey: "SECRET"}
	credFile := ""

	env, err := config.LoadRuntimeEnv()
	if err == nil && env.HasCredentialEndpoint() {
		creds = credentials.SessionToken{AccessKeyID: "AKID", SecretAccessKey: "SECRET", Token: "TOKEN"}
		credFile = "<credential-file>"
	}
	return gstreamer.DescribeRedacted(p, creds, credFile)
}
