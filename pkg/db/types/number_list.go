package dbtypes

import (
	"database/sql/driver"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// NumberList is an ordered list of pool numbers persisted as the legacy
// comma-joined column ("3,4,12"). Membership is always decided on parsed
// integers so "1" never matches "12".
type NumberList []int

// ParseNumberList splits a comma-joined value into exact integer tokens.
func ParseNumberList(s string) (NumberList, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return NumberList{}, nil
	}
	raw := strings.Split(s, ",")
	out := make(NumberList, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		n, err := strconv.Atoi(r)
		if err != nil {
			return nil, fmt.Errorf("NumberList: parse %q: %w", r, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (l *NumberList) Scan(src any) error {
	if src == nil {
		*l = NumberList{}
		return nil
	}

	var parsed NumberList
	var err error
	switch v := src.(type) {
	case string:
		parsed, err = ParseNumberList(v)
	case []byte:
		parsed, err = ParseNumberList(string(v))
	default:
		return fmt.Errorf("NumberList: unsupported Scan type %T", src)
	}
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

func (l NumberList) Value() (driver.Value, error) {
	return l.String(), nil
}

func (l NumberList) String() string {
	parts := make([]string, 0, len(l))
	for _, n := range l {
		parts = append(parts, strconv.Itoa(n))
	}
	return strings.Join(parts, ",")
}

// Contains reports exact membership.
func (l NumberList) Contains(n int) bool {
	for _, candidate := range l {
		if candidate == n {
			return true
		}
	}
	return false
}

// Union appends the numbers from other that are not already present,
// preserving the order of first appearance.
func (l NumberList) Union(other NumberList) NumberList {
	out := make(NumberList, 0, len(l)+len(other))
	seen := make(map[int]struct{}, len(l)+len(other))
	for _, list := range []NumberList{l, other} {
		for _, n := range list {
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}

// Without returns the list minus every number in drop.
func (l NumberList) Without(drop NumberList) NumberList {
	out := make(NumberList, 0, len(l))
	for _, n := range l {
		if !drop.Contains(n) {
			out = append(out, n)
		}
	}
	return out
}

// Intersects reports whether any number appears in both lists.
func (l NumberList) Intersects(other NumberList) bool {
	for _, n := range other {
		if l.Contains(n) {
			return true
		}
	}
	return false
}

// HasDuplicates reports whether the same number occurs twice.
func (l NumberList) HasDuplicates() bool {
	seen := make(map[int]struct{}, len(l))
	for _, n := range l {
		if _, ok := seen[n]; ok {
			return true
		}
		seen[n] = struct{}{}
	}
	return false
}

// Sorted returns an ascending copy.
func (l NumberList) Sorted() NumberList {
	out := append(NumberList(nil), l...)
	sort.Ints(out)
	return out
}
