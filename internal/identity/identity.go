// Package identity derives stable lookup keys and tracker labels for
// (service, collection) pairings.
//
// A pairing has two derived values that must never be conflated:
//
//   - the identity key, built only from the immutable concept IDs of the
//     service and the collection, used for all lookups and equality
//   - the labels, built from the mutable human-readable metadata (service
//     name, collection short name and version), refreshed on every update
//
// Renaming a service or collection changes its labels but never its key, so
// an existing open issue keeps tracking the same pairing across renames.
package identity

import (
	"fmt"
	"strings"

	"github.com/autotester/autotester/internal/catalog"
)

// Label prefixes for machine-readable labels carried on every tracked issue.
const (
	ServiceIDPrefix    = "service-id:"
	CollectionIDPrefix = "collection-id:"
	StatePrefix        = "state:"
)

// DefaultMarker is the label identifying issues managed by the autotester.
const DefaultMarker = "autotester"

// Key is the stable lookup key for a (service, collection) pairing.
type Key string

// DeriveKey builds the identity key from the immutable concept IDs.
// Human-readable names never contribute to the key.
func DeriveKey(service catalog.Service, collection catalog.Collection) Key {
	return Key(service.ConceptID + "/" + collection.ConceptID)
}

// ServiceConceptID returns the service half of the key.
func (k Key) ServiceConceptID() string {
	svc, _, _ := strings.Cut(string(k), "/")
	return svc
}

// CollectionConceptID returns the collection half of the key.
func (k Key) CollectionConceptID() string {
	_, col, _ := strings.Cut(string(k), "/")
	return col
}

// Labels produces the full label set for a tracked issue: the marker label,
// the machine labels encoding the identity key, and the public-facing
// presentation labels (service name, "<short name> <version>").
func Labels(marker string, service catalog.Service, collection catalog.Collection) []string {
	return []string{
		marker,
		ServiceIDPrefix + service.ConceptID,
		CollectionIDPrefix + collection.ConceptID,
		service.Name,
		CollectionLabel(collection),
	}
}

// CollectionLabel is the public-facing collection label. Short name and
// version are mutable metadata fields, but the label is end-user facing and
// so uses the readable form rather than the concept ID.
func CollectionLabel(collection catalog.Collection) string {
	return collection.ShortName + " " + collection.Version
}

// Title builds the issue title for a pairing.
func Title(service catalog.Service, collection catalog.Collection) string {
	return service.Name + " - " + CollectionLabel(collection)
}

// FromLabels recovers the identity key from an issue's labels. Both machine
// labels must be present; anything else means the issue was not created by
// the autotester or has been hand-edited beyond recognition.
func FromLabels(labels []string) (Key, error) {
	var serviceID, collectionID string
	for _, label := range labels {
		if v, ok := strings.CutPrefix(label, ServiceIDPrefix); ok {
			serviceID = v
		}
		if v, ok := strings.CutPrefix(label, CollectionIDPrefix); ok {
			collectionID = v
		}
	}
	if serviceID == "" || collectionID == "" {
		return "", fmt.Errorf("labels carry no identity key: %v", labels)
	}
	return Key(serviceID + "/" + collectionID), nil
}

// StateLabel encodes an issue state as a label.
func StateLabel(state string) string {
	return StatePrefix + state
}

// StateFromLabels extracts the state label value, or "" if absent.
func StateFromLabels(labels []string) string {
	for _, label := range labels {
		if v, ok := strings.CutPrefix(label, StatePrefix); ok {
			return v
		}
	}
	return ""
}

// ReplaceStateLabel returns labels with any existing state label replaced by
// the given state, preserving the order of the remaining labels.
func ReplaceStateLabel(labels []string, state string) []string {
	out := make([]string, 0, len(labels)+1)
	for _, label := range labels {
		if !strings.HasPrefix(label, StatePrefix) {
			out = append(out, label)
		}
	}
	return append(out, StateLabel(state))
}

// CollectionFromIssue reconstructs collection metadata for an issue that is
// no longer present in the association set. The concept ID comes from the
// machine label; the short name and version are recovered best-effort from
// the issue title ("<service> - <short name> <version>").
func CollectionFromIssue(title string, labels []string) catalog.Collection {
	collection := catalog.Collection{}
	for _, label := range labels {
		if v, ok := strings.CutPrefix(label, CollectionIDPrefix); ok {
			collection.ConceptID = v
		}
	}
	if _, display, ok := strings.Cut(title, " - "); ok {
		if short, version, ok := cutLast(display, " "); ok {
			collection.ShortName = short
			collection.Version = version
		} else {
			collection.ShortName = display
		}
	}
	return collection
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
