package cache

import "strings"

// Key identifies a stored snapshot.
type Key struct {
	// Namespace is an optional prefix shared by all keys of a deployment.
	Namespace string

	// Kind is the snapshot family, e.g. "entity" or "analytics".
	Kind string

	// GroupID is the group the snapshot belongs to.
	GroupID string

	// Suffix further qualifies the snapshot, e.g. "page1".
	Suffix string
}

// Snapshot families.
const (
	KindEntity    = "entity"
	KindAnalytics = "analytics"
)

// EntityPageKey is the key of the first-page address listing of a group.
func EntityPageKey(groupID string) Key {
	return Key{Kind: KindEntity, GroupID: groupID, Suffix: "page1"}
}

// AnalyticsKey is the key of the aggregation snapshot of a group.
func AnalyticsKey(groupID string) Key {
	return Key{Kind: KindAnalytics, GroupID: groupID}
}

// String generates the Redis key.
// Format: [namespace:]kind:groupID[:suffix]
//
// Example:
//
//	entity:3f2a...:page1
func (k Key) String() string {
	parts := make([]string, 0, 4)
	if ns := strings.Trim(k.Namespace, ":"); ns != "" {
		parts = append(parts, ns)
	}
	parts = append(parts, k.Kind, k.GroupID)
	if k.Suffix != "" {
		parts = append(parts, k.Suffix)
	}
	return strings.Join(parts, ":")
}

// withNamespace returns k prefixed by ns unless it already carries one.
func (k Key) withNamespace(ns string) Key {
	if k.Namespace == "" {
		k.Namespace = ns
	}
	return k
}
