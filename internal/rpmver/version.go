package rpmver

// Version is an opaque, immutable package version string with RPM ordering.
type Version struct {
	raw string
}

// New wraps a version string. Any byte string is a valid Version.
func New(s string) Version {
	return Version{raw: s}
}

func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0 or 1 as v sorts before, equal to, or after other.
func (v Version) Compare(other Version) int {
	return Compare(v.raw, other.raw)
}

// Less reports whether v sorts strictly before other.
func (v Version) Less(other Version) bool {
	return Compare(v.raw, other.raw) < 0
}

// Equal reports whether v and other compare equal. Distinct strings can be
// equal: separators are split points only and leading zeros are ignored.
func (v Version) Equal(other Version) bool {
	return Compare(v.raw, other.raw) == 0
}
