package records

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/iKV/cmd/util"
	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/spf13/cobra"
)

var (
	whereCmd = &cobra.Command{
		Use:   "where <database> <store> <index> [range]",
		Short: "List records by one index range",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(args[0], args[1])
			if err != nil {
				return err
			}
			var r *db.KeyRange
			if len(args) == 4 {
				if r, err = util.ParseRange(args[3]); err != nil {
					return err
				}
			}
			limit, _ := cmd.Flags().GetInt("limit")
			dirName, _ := cmd.Flags().GetString("dir")
			dir, err := util.ParseDirection(dirName)
			if err != nil {
				return err
			}
			recs, err := s.Where(util.ParseIndex(args[2]), r, limit, dir)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, recs)
		},
	}

	andCmd = &cobra.Command{
		Use:   "and <database> <store> <index> <range> [<index> <range>...]",
		Short: "List records matching all predicates",
		Long:  "List records matching all predicates. The first predicate drives the index walk, put the most selective one first.",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredicates(args, func(s *query.Store, preds []query.Predicate) (any, error) {
				return s.QueryAnd(preds...)
			})
		},
	}

	orCmd = &cobra.Command{
		Use:   "or <database> <store> <index> <range> [<index> <range>...]",
		Short: "List records matching at least one predicate",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredicates(args, func(s *query.Store, preds []query.Predicate) (any, error) {
				return s.QueryOr(preds...)
			})
		},
	}

	ignoreCaseCmd = &cobra.Command{
		Use:   "ignorecase <database> <store> <index> <text>",
		Short: "List records whose index value equals or starts with text, ignoring case",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(args[0], args[1])
			if err != nil {
				return err
			}
			modeName, _ := cmd.Flags().GetString("mode")
			mode, err := query.ParseMatchMode(modeName)
			if err != nil {
				return err
			}
			recs, err := s.IgnoreCase(util.ParseIndex(args[2]), args[3], mode)
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, recs)
		},
	}

	startsWithCmd = &cobra.Command{
		Use:   "startswith <database> <store> <index> <prefix>",
		Short: "List records whose index value starts with prefix",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(args[0], args[1])
			if err != nil {
				return err
			}
			var recs []db.Record
			if ignore, _ := cmd.Flags().GetBool("ignore-case"); ignore {
				recs, err = s.StartsWithIgnoreCase(util.ParseIndex(args[2]), args[3])
			} else {
				recs, err = s.StartsWith(util.ParseIndex(args[2]), args[3], db.Next)
			}
			if err != nil {
				return err
			}
			return util.PrintJSON(os.Stdout, recs)
		},
	}

	addCmd = &cobra.Command{
		Use:   "add <database> <store> <json-record>",
		Short: "Insert a record, fails if the key exists",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args, (*query.Store).Add)
		},
	}

	putCmd = &cobra.Command{
		Use:   "put <database> <store> <json-record>",
		Short: "Insert or replace a record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args, (*query.Store).Put)
		},
	}

	getCmd = &cobra.Command{
		Use:   "get <database> <store> <index> <range>",
		Short: "Print the first record in the range",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := storeAndRange(args[0], args[1], args[3])
			if err != nil {
				return err
			}
			rec, ok, err := s.Get(util.ParseIndex(args[2]), r)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no record in range %s", args[3])
			}
			return util.PrintJSON(os.Stdout, rec)
		},
	}

	countCmd = &cobra.Command{
		Use:   "count <database> <store> <index> [range]",
		Short: "Count the index entries in the range",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			rangeArg := "all"
			if len(args) == 4 {
				rangeArg = args[3]
			}
			s, r, err := storeAndRange(args[0], args[1], rangeArg)
			if err != nil {
				return err
			}
			n, err := s.Count(util.ParseIndex(args[2]), r)
			if err != nil {
				return err
			}
			fmt.Println(n)
			return nil
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <database> <store> <range>",
		Short: "Delete all records whose primary key is in the range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, r, err := storeAndRange(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			n, err := s.Delete(r)
			if err != nil {
				return err
			}
			fmt.Printf("deleted %d records\n", n)
			return nil
		},
	}

	updateAndCmd = &cobra.Command{
		Use:   "update-and <database> <store> <json-payload> <index> <range> [<index> <range>...]",
		Short: "Merge the payload into all records matching every predicate",
		Args:  cobra.MinimumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(args, (*query.Store).UpdateAnd)
		},
	}

	updateOrCmd = &cobra.Command{
		Use:   "update-or <database> <store> <json-payload> <index> <range> [<index> <range>...]",
		Short: "Merge the payload into all records matching at least one predicate",
		Args:  cobra.MinimumNArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpdate(args, (*query.Store).UpdateOr)
		},
	}

	deleteAndCmd = &cobra.Command{
		Use:   "delete-and <database> <store> <index> <range> [<index> <range>...]",
		Short: "Delete all records matching every predicate",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredicates(args, func(s *query.Store, preds []query.Predicate) (any, error) {
				n, err := s.DeleteAnd(preds...)
				return map[string]int{"deleted": n}, err
			})
		},
	}

	deleteOrCmd = &cobra.Command{
		Use:   "delete-or <database> <store> <index> <range> [<index> <range>...]",
		Short: "Delete all records matching at least one predicate",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredicates(args, func(s *query.Store, preds []query.Predicate) (any, error) {
				n, err := s.DeleteOr(preds...)
				return map[string]int{"deleted": n}, err
			})
		},
	}
)

func init() {
	whereCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of records (0 = unlimited)"))
	whereCmd.Flags().String("dir", "next", util.WrapString("Walk direction (next, nextunique, prev, prevunique)"))
	ignoreCaseCmd.Flags().String("mode", "exact", util.WrapString("Match mode (exact, prefix)"))
	startsWithCmd.Flags().Bool("ignore-case", false, util.WrapString("Ignore upper and lower case"))
	for _, c := range []*cobra.Command{addCmd, putCmd} {
		c.Flags().String("key", "", util.WrapString("Explicit primary key for stores with out-of-line keys (parsed as JSON if possible)"))
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func storeAndRange(dbName, storeName, rangeArg string) (*query.Store, *db.KeyRange, error) {
	r, err := util.ParseRange(rangeArg)
	if err != nil {
		return nil, nil, err
	}
	s, err := openStore(dbName, storeName)
	return s, r, err
}

// runPredicates parses <database> <store> followed by predicate pairs and prints the result of fn.
func runPredicates(args []string, fn func(s *query.Store, preds []query.Predicate) (any, error)) error {
	preds, err := util.ParsePredicates(args[2:])
	if err != nil {
		return err
	}
	s, err := openStore(args[0], args[1])
	if err != nil {
		return err
	}
	out, err := fn(s, preds)
	if err != nil {
		return err
	}
	return util.PrintJSON(os.Stdout, out)
}

func runUpdate(args []string, fn func(s *query.Store, payload db.Record, preds ...query.Predicate) ([]db.Key, error)) error {
	payload, err := util.ParseRecord(args[2])
	if err != nil {
		return err
	}
	preds, err := util.ParsePredicates(args[3:])
	if err != nil {
		return err
	}
	s, err := openStore(args[0], args[1])
	if err != nil {
		return err
	}
	keys, err := fn(s, payload, preds...)
	if err != nil {
		return err
	}
	return util.PrintJSON(os.Stdout, map[string]any{"updated": keys})
}

func runWrite(cmd *cobra.Command, args []string, fn func(s *query.Store, rec db.Record, key db.Key) (db.Key, error)) error {
	rec, err := util.ParseRecord(args[2])
	if err != nil {
		return err
	}
	var key db.Key
	if k, _ := cmd.Flags().GetString("key"); k != "" {
		key = util.ParseValue(k)
	}
	s, err := openStore(args[0], args[1])
	if err != nil {
		return err
	}
	pk, err := fn(s, rec, key)
	if err != nil {
		return err
	}
	return util.PrintJSON(os.Stdout, map[string]any{"key": pk})
}
