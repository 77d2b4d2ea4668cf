package storage

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// foldFunc is the SQL name of FoldCase. SQLite's own lower() only folds ASCII.
const foldFunc = "fold"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(foldFunc, 1, sqlFold); err != nil {
		panic(fmt.Sprintf("register sqlite function %s: %v", foldFunc, err))
	}
}

// FoldCase is the case folding every Store uses for case-insensitive names
// and text search.
func FoldCase(s string) string {
	return strings.ToLower(s)
}

func sqlFold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return FoldCase(v), nil
	case []byte:
		return FoldCase(string(v)), nil
	default:
		return v, nil
	}
}
