package database

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/iKV/cmd/util"
	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/schema"
	"github.com/ValentinKolb/iKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	registry *store.Registry

	// DatabaseCommands represents the db command group
	DatabaseCommands = &cobra.Command{
		Use:                "db",
		Short:              "Create, inspect and delete databases",
		PersistentPreRunE:  setupRegistry,
		PersistentPostRunE: closeRegistry,
	}

	buildCmd = &cobra.Command{
		Use:   "build <database>",
		Short: "Create a database or upgrade its schema",
		Long: `Create a database or upgrade its schema.

Stores are defined either in a YAML schema file (--schema) or with
--store name="definition" flags together with --version. A definition
lists the primary key followed by the indexes, e.g. "++id, name, !email, *tags".
Existing stores named in the schema are recreated (their records are dropped).`,
		Args: cobra.ExactArgs(1),
		RunE: runBuild,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all databases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := registry.List()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <database>",
		Short: "Delete a database and its snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return registry.Delete(args[0])
		},
	}

	infoCmd = &cobra.Command{
		Use:   "info <database>",
		Short: "Print schema and statistics of a database",
		Args:  cobra.ExactArgs(1),
		RunE:  runInfo,
	}
)

func init() {
	buildCmd.Flags().String("schema", "", util.WrapString("Path of a YAML schema file"))
	buildCmd.Flags().Uint64("version", 0, util.WrapString("Schema version, must be greater than the current version (used with --store)"))
	buildCmd.Flags().StringToString("store", nil, util.WrapString("Store definition as name=definition, can be repeated"))

	DatabaseCommands.AddCommand(buildCmd)
	DatabaseCommands.AddCommand(listCmd)
	DatabaseCommands.AddCommand(deleteCmd)
	DatabaseCommands.AddCommand(infoCmd)
}

func setupRegistry(cmd *cobra.Command, _ []string) (err error) {
	registry, err = util.Setup(cmd)
	return err
}

func closeRegistry(_ *cobra.Command, _ []string) error {
	return util.Finish(registry)
}

func runBuild(cmd *cobra.Command, args []string) error {
	var (
		version uint64
		defs    map[string]string
	)
	if path := viper.GetString("schema"); path != "" {
		f, err := schema.LoadFile(path)
		if err != nil {
			return err
		}
		version, defs = f.Version, f.Stores
	} else {
		var err error
		if defs, err = cmd.Flags().GetStringToString("store"); err != nil {
			return err
		}
		version = viper.GetUint64("version")
		if len(defs) == 0 || version == 0 {
			return errors.New("either --schema or --version and at least one --store is required")
		}
	}

	e, err := registry.Build(args[0], version, defs)
	if err != nil {
		return err
	}
	fmt.Printf("database %q is at version %d (%d stores)\n", args[0], e.Version(), len(e.StoreNames()))
	return nil
}

func runInfo(_ *cobra.Command, args []string) error {
	e, err := registry.Open(args[0])
	if err != nil {
		return err
	}
	info := e.GetInfo()

	type storeInfo struct {
		Name       string `json:"name"`
		Definition string `json:"definition"`
		Records    int    `json:"records"`
	}
	out := struct {
		Name    string          `json:"name"`
		Info    db.DatabaseInfo `json:"info"`
		Schemas []storeInfo     `json:"schemas"`
	}{Name: args[0], Info: info}
	for _, s := range info.Stores {
		out.Schemas = append(out.Schemas, storeInfo{Name: s.Schema.Name, Definition: schema.Describe(s.Schema), Records: s.Records})
	}
	return util.PrintJSON(os.Stdout, out)
}
