package types

import "github.com/shopspring/decimal"

// Fields is an insertion-ordered mapping of metric name to value. Snapshot
// producers decide the schema; consumers iterate Names() to see columns in
// the order they were first set.
type Fields struct {
	names  []string
	values map[string]decimal.Decimal
}

func (f *Fields) Set(name string, value decimal.Decimal) {
	if f.values == nil {
		f.values = make(map[string]decimal.Decimal)
	}
	if _, ok := f.values[name]; !ok {
		f.names = append(f.names, name)
	}
	f.values[name] = value
}

func (f Fields) Get(name string) (decimal.Decimal, bool) {
	value, ok := f.values[name]
	return value, ok
}

func (f Fields) Names() []string {
	names := make([]string, len(f.names))
	copy(names, f.names)
	return names
}

func (f Fields) Len() int {
	return len(f.names)
}
