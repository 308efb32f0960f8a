package records

import (
	"github.com/ValentinKolb/iKV/cmd/util"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/ValentinKolb/iKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	registry *store.Registry

	// QueryCommands represents the query command group
	QueryCommands = &cobra.Command{
		Use:   "query",
		Short: "Read and modify records of a store",
		Long: `Read and modify records of a store.

Index arguments name a secondary index, "-" selects the primary key.
Range arguments use the forms all, eq:v, lt:v, le:v, gt:v, ge:v,
between:lo:hi and between:lo:hi:lo-open:hi-open. Values are parsed as
JSON if possible (42, "42", [1,2]) and used as plain strings otherwise.`,
		PersistentPreRunE:  setupRegistry,
		PersistentPostRunE: closeRegistry,
	}
)

func init() {
	QueryCommands.AddCommand(whereCmd)
	QueryCommands.AddCommand(andCmd)
	QueryCommands.AddCommand(orCmd)
	QueryCommands.AddCommand(ignoreCaseCmd)
	QueryCommands.AddCommand(startsWithCmd)
	QueryCommands.AddCommand(addCmd)
	QueryCommands.AddCommand(putCmd)
	QueryCommands.AddCommand(getCmd)
	QueryCommands.AddCommand(countCmd)
	QueryCommands.AddCommand(deleteCmd)
	QueryCommands.AddCommand(updateAndCmd)
	QueryCommands.AddCommand(updateOrCmd)
	QueryCommands.AddCommand(deleteAndCmd)
	QueryCommands.AddCommand(deleteOrCmd)
	QueryCommands.AddCommand(perfTestCmd)
}

func setupRegistry(cmd *cobra.Command, _ []string) (err error) {
	registry, err = util.Setup(cmd)
	return err
}

func closeRegistry(_ *cobra.Command, _ []string) error {
	return util.Finish(registry)
}

// openStore resolves the <database> <store> arguments.
func openStore(dbName, storeName string) (*query.Store, error) {
	qdb, err := registry.Query(dbName)
	if err != nil {
		return nil, err
	}
	return qdb.Store(storeName)
}
