package model

// Base names a root that key paths are resolved against.
type Base string

// Well-known bases.
const (
	// BaseGlobal is the application's flat global field mapping.
	BaseGlobal Base = "global"

	// BaseScene is the root node of the on-screen tree.
	BaseScene Base = "scene"
)

// OrDefault returns BaseGlobal for the empty base.
func (b Base) OrDefault() Base {
	if b == "" {
		return BaseGlobal
	}
	return b
}

// String returns the base name.
func (b Base) String() string {
	return string(b.OrDefault())
}
