package symbols

import (
	"sort"
	"strings"
)

type symbolSet map[string]struct{}

func newSymbolSet() symbolSet {
	return make(symbolSet)
}

func (s symbolSet) add(kind, name string) {
	name = strings.TrimSpace(name)
	if name == "" || name == "_" || len(name) >= maxSymbolLength {
		return
	}
	s[kind+":"+name] = struct{}{}
}

func (s symbolSet) sorted() []string {
	out := make([]string, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}
