package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/namescout/namescout/internal/api"
	"github.com/namescout/namescout/internal/checker"
	"github.com/namescout/namescout/internal/config"
	"github.com/namescout/namescout/internal/domainutil"
	"github.com/namescout/namescout/internal/models"
)

// DefaultAPIURL is the default API server URL for the check command.
const DefaultAPIURL = "http://localhost:8000"

// NewCheckCommand creates the 'check' subcommand: a one-shot availability
// probe, either through a running API or locally without any server.
func NewCheckCommand() *cobra.Command {
	var apiURL string
	var local bool
	var timeout int

	cmd := &cobra.Command{
		Use:   "check [domain...]",
		Short: "Check domain availability",
		Long:  `Check one or more domains for availability. By default the check goes through a running API server; --local probes DNS and WHOIS directly from this process.`,
		Example: `  # Check through a running API
  namescout check example.com

  # Check several domains locally, no server needed
  namescout check --local example.com mydomain.dev

  # Check against a remote deployment
  namescout check --api-url https://api.example.org example.com`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runCheck(args, apiURL, local, timeout)
		},
	}

	cmd.Flags().StringVarP(&apiURL, "api-url", "u", DefaultAPIURL, "Base URL of the API")
	cmd.Flags().BoolVarP(&local, "local", "l", false, "Probe directly instead of calling the API")
	cmd.Flags().IntVarP(&timeout, "timeout", "t", 60, "Overall timeout in seconds")

	return cmd
}

func runCheck(domains []string, apiURL string, local bool, timeout int) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	if local {
		return runLocalCheck(ctx, domains)
	}

	client := api.NewClient(apiURL, time.Duration(timeout)*time.Second)
	for _, domain := range domains {
		res, err := client.CheckDomain(ctx, domain)
		if err != nil {
			fmt.Printf("%-40s error: %v\n", domain, err)
			continue
		}
		fmt.Printf("%-40s %s\n", res.Domain, res.Status)
	}
	return nil
}

func runLocalCheck(ctx context.Context, domains []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	chk := checker.New(cfg.GetDNSServer(), cfg.GetDNSTimeout())

	for _, domain := range domains {
		fqdn := domainutil.Normalize(domain)
		if !domainutil.IsValid(fqdn) {
			fmt.Printf("%-40s %s\n", fqdn, models.DomainUnknown)
			continue
		}
		status := models.MapWorkerStatus(chk.Check(ctx, fqdn))
		fmt.Printf("%-40s %s\n", fqdn, status)
	}
	return nil
}
