package registry

import "fmt"

// Disambiguate returns name if it is free, otherwise name(k) for the
// smallest k >= 2 that is free. Users and boards share this rule, so three
// requests for "Rob" yield "Rob", "Rob(2)" and "Rob(3)".
func Disambiguate(name string, taken func(string) bool) string {
	if !taken(name) {
		return name
	}
	for k := 2; ; k++ {
		candidate := fmt.Sprintf("%s(%d)", name, k)
		if !taken(candidate) {
			return candidate
		}
	}
}
