package records

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/iKV/cmd/util"
	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/ValentinKolb/iKV/lib/schema"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:     "perf",
		Short:   "Performance testing tool for the query layer",
		Long:    "Runs the query verbs against an in-memory database filled with generated records.",
		Args:    cobra.NoArgs,
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfRecords    = 10000
	perfGroups     = 100
	perfNumThreads = 4
	perfSkip       = make([]string, 0)
)

// perfResult is the outcome of one benchmark.
type perfResult struct {
	bench   testing.BenchmarkResult
	latency gometrics.Timer
}

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. add,or)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 4, util.WrapString("Number of threads to use for the benchmark"))
	key = "records"
	perfTestCmd.Flags().Int(key, 10000, util.WrapString("How many records to generate"))
	key = "groups"
	perfTestCmd.Flags().Int(key, 100, util.WrapString("How many distinct values the group index has"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfRecords = viper.GetInt("records")
	perfGroups = max(viper.GetInt("groups"), 1)
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

func runPerf(_ *cobra.Command, _ []string) error {
	conf := util.GetConfig()

	fmt.Println("Performance testing tool for the iKV query layer")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(conf.String())
	fmt.Printf("Records: %d, Groups: %d, Threads: %d\n", perfRecords, perfGroups, perfNumThreads)
	fmt.Println()

	engine := maple.NewMapleDB(&maple.DBOptions{Codec: conf.Codec})
	defer engine.Close()
	if err := schema.Build(engine, 1, map[string]string{"perf": "++id, name, group, age, *tags"}); err != nil {
		return err
	}
	s, err := query.New(engine, nil).Store("perf")
	if err != nil {
		return err
	}

	fmt.Println("filling database...")
	for i := 0; i < perfRecords; i++ {
		if _, err := s.Add(perfRecord(i), nil); err != nil {
			return err
		}
	}

	fmt.Println("starting tests...")
	results := make(map[string]perfResult)
	benchmarks := []struct {
		name string
		op   func(i int) error
	}{
		{"add", func(i int) error {
			_, err := s.Add(perfRecord(perfRecords+i), nil)
			return err
		}},
		{"where", func(i int) error {
			_, err := s.Where("age", query.Between(i%80, i%80+5, false, false), 50, db.Next)
			return err
		}},
		{"and", func(i int) error {
			_, err := s.QueryAnd(query.P("group", query.Eq(group(i))), query.P("age", query.Lt(40)))
			return err
		}},
		{"or", func(i int) error {
			_, err := s.QueryOr(query.P("group", query.Eq(group(i))), query.P("tags", query.Eq(fmt.Sprintf("tag-%d", i%10))))
			return err
		}},
		{"ignorecase", func(i int) error {
			_, err := s.IgnoreCase("name", fmt.Sprintf("USER-%05d", i%max(perfRecords, 1)), query.Exact)
			return err
		}},
		{"startswith-ignorecase", func(i int) error {
			_, err := s.StartsWithIgnoreCase("name", fmt.Sprintf("user-%03d", i%1000))
			return err
		}},
		{"update-and", func(i int) error {
			_, err := s.UpdateAnd(db.Record{"touched": i}, query.P("group", query.Eq(group(i))), query.P("age", query.Eq(i%90)))
			return err
		}},
		{"mixed", func(i int) error {
			var err error
			switch i % 4 {
			case 0:
				_, err = s.QueryAnd(query.P("group", query.Eq(group(i))), query.P("age", query.Ge(50)))
			case 1:
				_, err = s.QueryOr(query.P("group", query.Eq(group(i))), query.P("group", query.Eq(group(i+1))))
			case 2:
				_, err = s.IgnoreCase("name", fmt.Sprintf("user-%05d", i%max(perfRecords, 1)), query.Exact)
			case 3:
				_, err = s.Put(perfRecord(i%max(perfRecords, 1)), nil)
			}
			return err
		}},
	}

	for _, bm := range benchmarks {
		if shouldSkip(bm.name) {
			printResult(bm.name, perfResult{})
			continue
		}
		res := runBenchmark(bm.name, bm.op)
		results[bm.name] = res
		printResult(bm.name, res)
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// runBenchmark runs op in parallel and records the latency of every call.
func runBenchmark(name string, op func(i int) error) perfResult {
	latency := gometrics.NewTimer()
	bench := testing.Benchmark(func(b *testing.B) {
		b.SetParallelism(perfNumThreads)
		b.ResetTimer()
		b.RunParallel(func(pb *testing.PB) {
			counter := 0
			for pb.Next() {
				start := time.Now()
				if err := op(counter); err != nil {
					util.Logger.Warningf("(%s) - error: %v", name, err)
				}
				latency.UpdateSince(start)
				counter++
			}
		})
	})
	return perfResult{bench: bench, latency: latency}
}

func perfRecord(i int) db.Record {
	return db.Record{
		"name":  fmt.Sprintf("User-%05d", i),
		"group": group(i),
		"age":   i % 90,
		"tags":  []any{fmt.Sprintf("tag-%d", i%10), fmt.Sprintf("tag-%d", i%7)},
	}
}

func group(i int) string {
	return fmt.Sprintf("group-%03d", i%perfGroups)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	for _, skip := range perfSkip {
		if test == skip {
			return true
		}
	}
	return false
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result perfResult) {
	if result.latency == nil || result.bench.NsPerOp() == 0 {
		fmt.Printf("%-24sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)
	p := result.latency.Percentiles([]float64{0.5, 0.99})

	fmt.Printf("%-24s%.0fns/op (%s/op)\t%.0f ops/sec\tp50 %s\tp99 %s\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, time.Duration(p[0]), time.Duration(p[1]))
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]perfResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"P50Ns", "P95Ns", "P99Ns", "Calls",
		"Codec", "Threads", "Records", "Groups",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for test, result := range results {
		nsPerOp := math.Max(float64(result.bench.NsPerOp()), 1)
		p := result.latency.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			fmt.Sprintf("%.0f", p[2]),
			strconv.FormatInt(result.latency.Count(), 10),
			viper.GetString("codec"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfRecords),
			strconv.Itoa(perfGroups),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}
	return nil
}
