// Package echoescmder
package echoescmder

import (
	"github.com/spf13/cobra"

	checkcmder "github.com/papercomputeco/echoes/cmd/echoes/check"
	cleanupcmder "github.com/papercomputeco/echoes/cmd/echoes/cleanup"
	configcmder "github.com/papercomputeco/echoes/cmd/echoes/config"
	draincmder "github.com/papercomputeco/echoes/cmd/echoes/drain"
	editcmder "github.com/papercomputeco/echoes/cmd/echoes/edit"
	forgetcmder "github.com/papercomputeco/echoes/cmd/echoes/forget"
	listcmder "github.com/papercomputeco/echoes/cmd/echoes/list"
	migratecmder "github.com/papercomputeco/echoes/cmd/echoes/migrate"
	publishcmder "github.com/papercomputeco/echoes/cmd/echoes/publish"
	reportcmder "github.com/papercomputeco/echoes/cmd/echoes/report"
	servecmder "github.com/papercomputeco/echoes/cmd/echoes/serve"
	versioncmder "github.com/papercomputeco/echoes/cmd/echoes/version"
)

const echoesLongDesc string = `Echoes keeps the triplets an agent extracts from its conversations
and tracks each one until it is published to the ledger.

Run the service using:
  echoes serve         Run the API server and ingest workers

Work with the local store using:
  echoes drain         Extract triplets from buffered messages
  echoes list          List triplet records
  echoes check <id>    Resolve the object atom of a record
  echoes publish <id>  Publish records to the ledger
  echoes cleanup       Purge the buffer and old records`

const echoesShortDesc string = "Echoes - triplet persistence and lifecycle"

func NewEchoesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "echoes",
		Short:         echoesShortDesc,
		Long:          echoesLongDesc,
		SilenceUsage:  true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .echoes/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(draincmder.NewDrainCmd())
	cmd.AddCommand(migratecmder.NewMigrateCmd())
	cmd.AddCommand(listcmder.NewListCmd())
	cmd.AddCommand(reportcmder.NewReportCmd())
	cmd.AddCommand(checkcmder.NewCheckCmd())
	cmd.AddCommand(publishcmder.NewPublishCmd())
	cmd.AddCommand(editcmder.NewEditCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(cleanupcmder.NewCleanupCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
