package scopelog

import (
	"fmt"
	"strings"
)

// ChannelSet is the ordered list of channel identifiers chosen for one run.
// It fixes the column order of every batch and every sink row. The zero value
// is an empty set; use NewChannelSet to build a usable one.
type ChannelSet struct {
	names []string
}

// NewChannelSet returns a ChannelSet holding a private copy of names. It is an
// error for names to be empty, to contain a blank name, or to repeat a name.
func NewChannelSet(names ...string) (ChannelSet, error) {
	if len(names) == 0 {
		return ChannelSet{}, fmt.Errorf("%w: channel set is empty", ErrInvalidConfiguration)
	}
	seen := make(map[string]bool, len(names))
	copied := make([]string, len(names))
	for i, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			return ChannelSet{}, fmt.Errorf("%w: channel %d has a blank name", ErrInvalidConfiguration, i)
		}
		if seen[name] {
			return ChannelSet{}, fmt.Errorf("%w: channel %q appears more than once", ErrInvalidConfiguration, name)
		}
		seen[name] = true
		copied[i] = name
	}
	return ChannelSet{names: copied}, nil
}

// Len returns the number of channels.
func (cs ChannelSet) Len() int {
	return len(cs.names)
}

// Name returns the identifier of channel i.
func (cs ChannelSet) Name(i int) string {
	return cs.names[i]
}

// Names returns a copy of the channel identifiers, in order.
func (cs ChannelSet) Names() []string {
	out := make([]string, len(cs.names))
	copy(out, cs.names)
	return out
}

func (cs ChannelSet) String() string {
	return strings.Join(cs.names, ",")
}
