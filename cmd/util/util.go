package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/iKV/lib/common"
	"github.com/ValentinKolb/iKV/lib/db"
	"github.com/ValentinKolb/iKV/lib/db/codec"
	"github.com/ValentinKolb/iKV/lib/db/engines/maple"
	"github.com/ValentinKolb/iKV/lib/query"
	"github.com/ValentinKolb/iKV/lib/store"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// PrimaryKey is the index argument that selects the primary key
	PrimaryKey = "-"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupStorageFlags adds the flags shared by all commands that touch a data directory
func SetupStorageFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "data-dir"
	cmd.PersistentFlags().String(key, def.DataDir, WrapString("Directory holding one snapshot file per database"))

	key = "codec"
	cmd.PersistentFlags().String(key, def.Codec, WrapString("Codec used for snapshot files (gob, json). json does not preserve dates and binary values"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("Log level (debug, info, warn, error)"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, def.Metrics, WrapString("Print query metrics in Prometheus format after the command"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("ikv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper
func GetConfig() *common.Config {
	return &common.Config{
		DataDir:  viper.GetString("data-dir"),
		Codec:    viper.GetString("codec"),
		Metrics:  viper.GetBool("metrics"),
		LogLevel: viper.GetString("log-level"),
	}
}

// Setup binds the flags of cmd, initializes the loggers and opens the
// registry of the configured data directory.
func Setup(cmd *cobra.Command) (*store.Registry, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	conf := GetConfig()
	if err := common.InitLoggers(conf.LogLevel); err != nil {
		return nil, err
	}
	if _, err := codec.ByName(conf.Codec); err != nil {
		return nil, err
	}
	Logger.Debugf("configuration:%s", conf.String())

	codecName := conf.Codec
	return store.NewRegistry(conf.DataDir, func() db.Engine {
		return maple.NewMapleDB(&maple.DBOptions{Codec: codecName})
	}, query.DefaultOptions())
}

// Finish closes all databases of the registry and prints the metrics if requested.
func Finish(reg *store.Registry) error {
	if reg == nil {
		return nil
	}
	err := reg.CloseAll()
	if GetConfig().Metrics {
		fmt.Fprintln(os.Stderr)
		query.WriteMetrics(os.Stderr)
	}
	return err
}

// --------------------------------------------------------------------------
// Argument parsing
// --------------------------------------------------------------------------

// ParseIndex converts an index argument, PrimaryKey selects the primary key.
func ParseIndex(s string) string {
	if s == PrimaryKey {
		return ""
	}
	return s
}

// ParseValue parses s as JSON and falls back to the plain string.
func ParseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err == nil && v != nil {
		return v
	}
	return s
}

// ParseRange parses a key range argument:
//
//	all | *                      every key
//	eq:v lt:v le:v gt:v ge:v     single bound
//	between:lo:hi                lo <= key <= hi
//	between:lo:hi:true:false     lo < key <= hi (lower open, upper closed)
//
// Values are parsed with ParseValue.
func ParseRange(s string) (*db.KeyRange, error) {
	if s == "all" || s == "*" {
		return nil, nil
	}
	op, rest, ok := strings.Cut(s, ":")
	if !ok {
		return nil, errors.Newf("invalid range %q (expected op:value)", s)
	}
	switch op {
	case "eq":
		return db.Only(ParseValue(rest))
	case "lt":
		return db.UpperBound(ParseValue(rest), true)
	case "le":
		return db.UpperBound(ParseValue(rest), false)
	case "gt":
		return db.LowerBound(ParseValue(rest), true)
	case "ge":
		return db.LowerBound(ParseValue(rest), false)
	case "between":
		parts := strings.Split(rest, ":")
		if len(parts) != 2 && len(parts) != 4 {
			return nil, errors.Newf("invalid range %q (expected between:lo:hi[:lo-open:hi-open])", s)
		}
		var loOpen, hiOpen bool
		if len(parts) == 4 {
			var err error
			if loOpen, err = strconv.ParseBool(parts[2]); err != nil {
				return nil, errors.Wrapf(err, "range %q", s)
			}
			if hiOpen, err = strconv.ParseBool(parts[3]); err != nil {
				return nil, errors.Wrapf(err, "range %q", s)
			}
		}
		return db.Bound(ParseValue(parts[0]), ParseValue(parts[1]), loOpen, hiOpen)
	}
	return nil, errors.Newf("invalid range operator %q (must be one of eq, lt, le, gt, ge, between)", op)
}

// ParsePredicates parses (index, range) argument pairs.
func ParsePredicates(args []string) ([]query.Predicate, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, errors.Newf("expected index and range pairs, got %d arguments", len(args))
	}
	preds := make([]query.Predicate, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		r, err := ParseRange(args[i+1])
		if err != nil {
			return nil, err
		}
		preds = append(preds, query.P(ParseIndex(args[i]), r))
	}
	return preds, nil
}

// ParseRecord parses a JSON object.
func ParseRecord(s string) (db.Record, error) {
	var rec db.Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil {
		return nil, errors.Wrap(err, "record must be a JSON object")
	}
	if rec == nil {
		return nil, errors.New("record must be a JSON object")
	}
	return rec, nil
}

// ParseDirection parses next, nextunique, prev or prevunique.
func ParseDirection(s string) (db.Direction, error) {
	switch strings.ToLower(s) {
	case "next", "":
		return db.Next, nil
	case "nextunique":
		return db.NextUnique, nil
	case "prev":
		return db.Prev, nil
	case "prevunique":
		return db.PrevUnique, nil
	}
	return db.Next, errors.Newf("invalid direction %q (must be one of next, nextunique, prev, prevunique)", s)
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// PrintJSON writes v as indented JSON to w.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
