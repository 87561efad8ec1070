package content

import (
	"fmt"
	"strings"
)

// SortOrder decides how candidates, and files inside a candidate, are ordered.
type SortOrder int

const (
	ByName SortOrder = iota
	ByCreationTime
	ByModificationTime
	Random
)

func (o SortOrder) String() string {
	switch o {
	case ByName:
		return "name"
	case ByCreationTime:
		return "ctime"
	case ByModificationTime:
		return "mtime"
	case Random:
		return "random"
	default:
		return "unknown"
	}
}

// ParseSortOrder accepts the names used in job definitions.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "name", "filename":
		return ByName, nil
	case "ctime", "created":
		return ByCreationTime, nil
	case "mtime", "modified":
		return ByModificationTime, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("unknown sort order: %q", s)
	}
}

// PostOrder resolves the order used inside a multi-file candidate.
// An explicit order wins. Otherwise a random outer order falls back to name
// order and any other outer order is reused.
func PostOrder(outer SortOrder, explicit *SortOrder) SortOrder {
	if explicit != nil {
		return *explicit
	}
	if outer == Random {
		return ByName
	}
	return outer
}
