package postprocess

import (
	"regexp"
	"strconv"
)

// DefaultLabel is used when the confidence tensor carries no class index.
const DefaultLabel = "Object"

var quotedToken = regexp.MustCompile(`'([^']+)'`)

// ClassNames is an ordered class index to label table.
type ClassNames []string

// ParseClassNames extracts the labels of a Python dict literal such as
// "{0: 'person', 1: 'bicycle'}".
//
// Every single-quoted token is taken in order of appearance, so the keys are
// assumed to be 0..N-1 in sequence. A string without quoted tokens yields nil.
func ParseClassNames(s string) ClassNames {
	matches := quotedToken.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}
	names := make(ClassNames, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// Resolve maps a class index to a label.
//
// Returns:
//   - string: The table entry when class is in range, "class_<index>" when it
//     is not, or DefaultLabel when class is NoClass.
func (c ClassNames) Resolve(class int) string {
	if class < 0 {
		return DefaultLabel
	}
	if class < len(c) {
		return c[class]
	}
	return "class_" + strconv.Itoa(class)
}

// Index returns the class index of label, or NoClass.
func (c ClassNames) Index(label string) int {
	for i, n := range c {
		if n == label {
			return i
		}
	}
	return NoClass
}
