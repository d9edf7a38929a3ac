package reconcile

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Plan is the minimal set of changes that turns the current subscription
// set into the desired one. The two sets never share a name.
type Plan struct {
	ToSubscribe   mapset.Set[string]
	ToUnsubscribe mapset.Set[string]
}

// Reconcile computes desired-current and current-desired. Subreddit names
// are compared case-insensitively, as Reddit does; each side keeps the
// spelling of the set it came from.
func Reconcile(desired, current mapset.Set[string]) Plan {
	return Plan{
		ToSubscribe:   difference(desired, current),
		ToUnsubscribe: difference(current, desired),
	}
}

func (p Plan) Empty() bool {
	return p.Len() == 0
}

func (p Plan) Len() int {
	n := 0
	if p.ToSubscribe != nil {
		n += p.ToSubscribe.Cardinality()
	}
	if p.ToUnsubscribe != nil {
		n += p.ToUnsubscribe.Cardinality()
	}
	return n
}

func difference(a, b mapset.Set[string]) mapset.Set[string] {
	out := mapset.NewSet[string]()
	if a == nil {
		return out
	}

	folded := mapset.NewSet[string]()
	if b != nil {
		b.Each(func(name string) bool {
			folded.Add(strings.ToLower(name))
			return false
		})
	}

	a.Each(func(name string) bool {
		if !folded.Contains(strings.ToLower(name)) {
			out.Add(name)
		}
		return false
	})
	return out
}
