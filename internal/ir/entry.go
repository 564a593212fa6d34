package ir

import "strings"

// Entry is a single content record submitted for admission into the shared
// store. At this layer it is nothing but its raw content; the content is
// expected to be a JSON document, but that is only checked when a call to a
// validation module is built.
type Entry struct {
	Content []byte `json:"content"`
}

// NewEntry creates an entry from its raw content.
func NewEntry(content string) Entry {
	return Entry{Content: []byte(content)}
}

// SystemPrefix marks entry type tags reserved for the platform.
const SystemPrefix = "%"

// SystemKind enumerates the system-reserved entry categories.
type SystemKind string

const (
	// SystemAppDescriptor is the application descriptor entry.
	SystemAppDescriptor SystemKind = "%dna"
	SystemAgentID       SystemKind = "%agent_id"
	SystemDeletion      SystemKind = "%deletion"
	SystemLinkAdd       SystemKind = "%link_add"
	SystemLinkRemove    SystemKind = "%link_remove"
	SystemLinkList      SystemKind = "%link_list"
	SystemChainHeader   SystemKind = "%chain_header"
	SystemChainMigrate  SystemKind = "%chain_migrate"
)

// systemKinds is the closed set of recognized system tags.
var systemKinds = map[SystemKind]bool{
	SystemAppDescriptor: true,
	SystemAgentID:       true,
	SystemDeletion:      true,
	SystemLinkAdd:       true,
	SystemLinkRemove:    true,
	SystemLinkList:      true,
	SystemChainHeader:   true,
	SystemChainMigrate:  true,
}

// EntryType is a closed sum type classifying an entry.
// Only SystemType, AppType and UnknownType implement it.
type EntryType interface {
	entryType() // Sealed
	// Tag returns the wire tag the type was parsed from.
	Tag() string
}

// SystemType is one of the platform-reserved categories.
type SystemType struct {
	Kind SystemKind
}

func (SystemType) entryType() {}

// Tag implements EntryType.
func (t SystemType) Tag() string { return string(t.Kind) }

// AppType is an application-defined category. Name is caller supplied and
// is not checked against any registry here.
type AppType struct {
	Name string
}

func (AppType) entryType() {}

// Tag implements EntryType.
func (t AppType) Tag() string { return t.Name }

// UnknownType carries a tag that is neither a recognized system category nor
// a usable application name (empty, or an unrecognized % tag).
type UnknownType struct {
	Raw string
}

func (UnknownType) entryType() {}

// Tag implements EntryType.
func (t UnknownType) Tag() string { return t.Raw }

// ParseEntryType maps a wire tag to its EntryType variant. It is total:
// every string yields exactly one variant.
func ParseEntryType(tag string) EntryType {
	switch {
	case tag == "":
		return UnknownType{Raw: tag}
	case strings.HasPrefix(tag, SystemPrefix):
		kind := SystemKind(tag)
		if systemKinds[kind] {
			return SystemType{Kind: kind}
		}
		return UnknownType{Raw: tag}
	default:
		return AppType{Name: tag}
	}
}
