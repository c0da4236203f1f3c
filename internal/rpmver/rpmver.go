// Package rpmver compares package version strings using RPM semantics.
//
// The comparison is a pure total function over byte strings and never fails;
// installers use it to decide whether an upgrade path applies, so the
// ordering must match librpm's rpmvercmp exactly.
package rpmver

import "strings"

// Compare returns -1, 0 or 1 as a sorts before, equal to, or after b
// under RPM version ordering.
func Compare(a, b string) int {
	if a == b {
		return 0
	}

	i, j := 0, 0
	for i < len(a) || j < len(b) {
		// Separators only delimit tokens; they are never compared.
		for i < len(a) && !isTokenStart(a[i]) {
			i++
		}
		for j < len(b) && !isTokenStart(b[j]) {
			j++
		}

		// Tilde marks a pre-release: it sorts before everything,
		// including the end of the string.
		aTilde := i < len(a) && a[i] == '~'
		bTilde := j < len(b) && b[j] == '~'
		if aTilde || bTilde {
			if !aTilde {
				return 1
			}
			if !bTilde {
				return -1
			}
			i++
			j++
			continue
		}

		// Caret marks a post-release: older than any further token,
		// but newer than the bare version.
		aCaret := i < len(a) && a[i] == '^'
		bCaret := j < len(b) && b[j] == '^'
		if aCaret || bCaret {
			if i == len(a) {
				return -1
			}
			if j == len(b) {
				return 1
			}
			if !aCaret {
				return 1
			}
			if !bCaret {
				return -1
			}
			i++
			j++
			continue
		}

		if i == len(a) || j == len(b) {
			break
		}

		// Grab the next segment: a run of digits or a run of letters,
		// matching the character class of a's segment.
		var sa, sb string
		numeric := isDigit(a[i])
		if numeric {
			sa, i = takeRun(a, i, isDigit)
			sb, j = takeRun(b, j, isDigit)
		} else {
			sa, i = takeRun(a, i, isAlpha)
			sb, j = takeRun(b, j, isAlpha)
		}

		// Segments of different classes: numeric always wins.
		if sb == "" {
			if numeric {
				return 1
			}
			return -1
		}

		if numeric {
			sa = strings.TrimLeft(sa, "0")
			sb = strings.TrimLeft(sb, "0")
			// More significant digits means a larger number.
			if len(sa) != len(sb) {
				if len(sa) > len(sb) {
					return 1
				}
				return -1
			}
		}

		if c := strings.Compare(sa, sb); c != 0 {
			return c
		}
	}

	// All compared segments equal; the side with tokens left is newer.
	if i == len(a) && j == len(b) {
		return 0
	}
	if i == len(a) {
		return -1
	}
	return 1
}

// CompareEVR compares two versions in [epoch:]version[-release] form,
// treating a missing epoch as 0 and comparing each part with Compare.
func CompareEVR(a, b string) int {
	ea, va, ra := splitEVR(a)
	eb, vb, rb := splitEVR(b)

	if c := Compare(ea, eb); c != 0 {
		return c
	}
	if c := Compare(va, vb); c != 0 {
		return c
	}
	return Compare(ra, rb)
}

func splitEVR(s string) (epoch, version, release string) {
	epoch = "0"
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		if idx > 0 {
			epoch = s[:idx]
		}
		s = s[idx+1:]
	}
	if idx := strings.IndexByte(s, '-'); idx >= 0 {
		return epoch, s[:idx], s[idx+1:]
	}
	return epoch, s, ""
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isTokenStart(c byte) bool {
	return isDigit(c) || isAlpha(c) || c == '~' || c == '^'
}

func takeRun(s string, start int, class func(byte) bool) (string, int) {
	end := start
	for end < len(s) && class(s[end]) {
		end++
	}
	return s[start:end], end
}
