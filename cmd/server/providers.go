package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gsarma/portier/internal/config"
	"github.com/gsarma/portier/internal/oauth"
)

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported providers and whether credentials are configured",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return printProviders(cmd.OutOrStdout(), oauth.DefaultRegistry(), cfg.CredentialStore(), cfg.ApplicationURL)
		},
	}
}

func printProviders(w io.Writer, reg *oauth.Registry, creds *oauth.CredentialStore, baseURL string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tNAME\tSTATUS\tCALLBACK")
	for _, d := range reg.List() {
		status := "configured"
		if _, err := creds.CredentialsFor(d.ID); err != nil {
			status = err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.DisplayName, status, oauth.CallbackURL(baseURL, d.ID))
	}
	return tw.Flush()
}
