package normalize

import "golang.org/x/text/cases"

// foldKey case-folds s when insensitive is set. A fresh Caser is used per
// call because Casers are stateful.
func foldKey(s string, insensitive bool) string {
	if !insensitive {
		return s
	}
	return cases.Fold().String(s)
}

type foldSet struct {
	insensitive bool
	values      map[string]struct{}
}

func newFoldSet(values []string, insensitive bool) foldSet {
	set := foldSet{insensitive: insensitive, values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		set.values[foldKey(v, insensitive)] = struct{}{}
	}
	return set
}

func (s foldSet) has(v string) bool {
	_, ok := s.values[foldKey(v, s.insensitive)]
	return ok
}
