package relay

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// filter narrows what one downstream client receives. Empty sets match
// everything.
type filter struct {
	names  map[events.Name]struct{}
	worlds map[events.World]struct{}
}

// parseFilter reads repeated or comma-separated "event" and "world" query
// parameters.
func parseFilter(q url.Values) (filter, error) {
	var f filter
	for _, raw := range splitValues(q["event"]) {
		name := events.Name(raw)
		if !slices.Contains(events.Names(), name) {
			return f, fmt.Errorf("unknown event %q", raw)
		}
		if f.names == nil {
			f.names = make(map[events.Name]struct{})
		}
		f.names[name] = struct{}{}
	}
	for _, raw := range splitValues(q["world"]) {
		w, err := events.ParseWorld(raw)
		if err != nil {
			return f, err
		}
		if f.worlds == nil {
			f.worlds = make(map[events.World]struct{})
		}
		f.worlds[w] = struct{}{}
	}
	return f, nil
}

func splitValues(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// match reports whether an event passes. Events without a world never pass
// a world filter.
func (f filter) match(name events.Name, world *int64) bool {
	if f.names != nil {
		if _, ok := f.names[name]; !ok {
			return false
		}
	}
	if f.worlds != nil {
		if world == nil {
			return false
		}
		if _, ok := f.worlds[events.World(*world)]; !ok {
			return false
		}
	}
	return true
}
