package maple

import (
	"testing"

	"github.com/ValentinKolb/iKV/lib/db"
	dbtesting "github.com/ValentinKolb/iKV/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunEngineTests(t, "MapleDB", func() db.Engine {
		return NewMapleDB(nil)
	})
	dbtesting.RunEngineTests(t, "MapleDB(json)", func() db.Engine {
		return NewMapleDB(&DBOptions{Codec: "json"})
	})
}

func Benchmark(t *testing.B) {
	dbtesting.RunEngineBenchmarks(t, "MapleDB", func() db.Engine {
		return NewMapleDB(nil)
	})
}
