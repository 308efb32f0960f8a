package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/iKV/cmd/database"
	"github.com/ValentinKolb/iKV/cmd/records"
	"github.com/ValentinKolb/iKV/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ikv",
		Short: "indexed key-value store with cursor queries",
		Long: fmt.Sprintf(`iKV (v%s)

An embedded, ordered key-value store with secondary indexes and a query
layer for AND/OR predicates and case-insensitive search.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of iKV",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iKV v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(database.DatabaseCommands)
	RootCmd.AddCommand(records.QueryCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStorageFlags(RootCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
