package profile

import (
	"fmt"
	"sort"
	"strings"
)

// SortOption orders profile listings. Values are "<key>-<direction>".
type SortOption string

const (
	SortCreatedAsc  SortOption = "createdAt-asc"
	SortCreatedDesc SortOption = "createdAt-desc"
	SortNameAsc     SortOption = "name-asc"
	SortNameDesc    SortOption = "name-desc"
)

// ParseSort validates s. An empty string selects SortCreatedAsc.
func ParseSort(s string) (SortOption, error) {
	switch opt := SortOption(s); opt {
	case "":
		return SortCreatedAsc, nil
	case SortCreatedAsc, SortCreatedDesc, SortNameAsc, SortNameDesc:
		return opt, nil
	default:
		return "", fmt.Errorf("unknown sort option %q", s)
	}
}

// Sort orders profiles in place. Equal keys keep their relative order.
func Sort(profiles []Profile, opt SortOption) {
	key, dir, _ := strings.Cut(string(opt), "-")
	desc := dir == "desc"

	sort.SliceStable(profiles, func(i, j int) bool {
		a, b := profiles[i], profiles[j]
		if desc {
			a, b = b, a
		}
		if key == "name" {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
