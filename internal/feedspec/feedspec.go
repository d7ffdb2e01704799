// Package feedspec implements the feed bitmask used to subscribe to, and
// partition state by, labeled subsets of the publisher's product stream.
package feedspec

import (
	"fmt"
	"strings"
)

// FeedSpec is a bitmask over up to 32 distinct feed bits.
type FeedSpec uint32

// None selects no feeds. The "ANY" composite registered in registry.go
// covers the ten standard feeds only, not feeds registered later.
const (
	None FeedSpec = 0
)

// registry maps a canonical feed name to its bit, and composite names to the
// union of the bits they stand for. Populated by Register at init time,
// mirroring how a forwarding daemon registers face/strategy names once at
// startup.
var (
	byName = map[string]FeedSpec{}
	byBit  = map[FeedSpec]string{}
)

// Register assigns name to a single feed bit, the next unused one, and returns it.
// Panics if more than 32 feeds are registered or name is already registered.
func Register(name string) FeedSpec {
	if _, ok := byName[name]; ok {
		panic(fmt.Sprintf("feedspec: %q already registered", name))
	}
	if len(byBit) >= 32 {
		panic("feedspec: exhausted 32 feed bits")
	}
	bit := FeedSpec(1) << uint(len(byBit))
	byName[name] = bit
	byBit[bit] = name
	return bit
}

// RegisterComposite assigns name to the union of the named feeds' bits.
func RegisterComposite(name string, members ...string) (FeedSpec, error) {
	var spec FeedSpec
	for _, m := range members {
		bit, ok := byName[m]
		if !ok {
			return None, fmt.Errorf("feedspec: unknown member feed %q for composite %q", m, name)
		}
		spec |= bit
	}
	byName[name] = spec
	return spec, nil
}

// Parse resolves a feed name (simple or composite) to its FeedSpec.
func Parse(name string) (FeedSpec, error) {
	spec, ok := byName[name]
	if !ok {
		return None, fmt.Errorf("feedspec: unknown feed %q", name)
	}
	return spec, nil
}

// Intersects reports whether the two specs share any feed bit.
func (f FeedSpec) Intersects(other FeedSpec) bool {
	return f&other != 0
}

// Intersection returns the bits common to both specs.
func (f FeedSpec) Intersection(other FeedSpec) FeedSpec {
	return f & other
}

// IsEmpty reports whether the spec selects no feeds.
func (f FeedSpec) IsEmpty() bool {
	return f == None
}

// String renders the spec as a "|"-joined list of the single-bit feed names
// it contains, in ascending bit order; unregistered bits render as their
// hex value so unknown-but-set bits are still visible in logs.
func (f FeedSpec) String() string {
	if f == None {
		return "NONE"
	}
	var parts []string
	for bit := FeedSpec(1); bit != 0; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if name, ok := byBit[bit]; ok {
			parts = append(parts, name)
		} else {
			parts = append(parts, fmt.Sprintf("0x%x", uint32(bit)))
		}
	}
	return strings.Join(parts, "|")
}
