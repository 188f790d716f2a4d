package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFilter splits "column=eq.value" into its column and value parts.
// Only equality filters exist in this protocol.
func ParseFilter(filter string) (column, value string, ok bool) {
	column, rest, found := strings.Cut(filter, "=eq.")
	if !found || column == "" {
		return "", "", false
	}
	return column, rest, true
}

// Matches reports whether the event passes the subscription's type and row
// filters. Delete events carry the row in Old instead of New.
func (s Subscription) Matches(ev ChangeEvent) bool {
	if ev.Table != s.Table {
		return false
	}
	if len(s.Types) > 0 {
		found := false
		for _, t := range s.Types {
			if t == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.Filter == "" {
		return true
	}
	column, want, ok := ParseFilter(s.Filter)
	if !ok {
		return false
	}
	row := ev.New
	if ev.Type == ChangeDelete {
		row = ev.Old
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(row, &fields); err != nil {
		return false
	}
	raw, ok := fields[column]
	if !ok {
		return false
	}
	var got any
	if err := json.Unmarshal(raw, &got); err != nil {
		return false
	}
	return fmt.Sprint(got) == want
}
