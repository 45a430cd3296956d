// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PermForge Contributors

package node

import "fmt"

// Tristate is the result of a permission lookup: granted, denied, or not set.
type Tristate int

// Tristate values. Undefined is the zero value so an absent map entry reads
// as "not set".
const (
	Undefined Tristate = iota // undefined
	True                      // true
	False                     // false
)

var tristateStrings = [...]string{"undefined", "true", "false"}

func (t Tristate) String() string {
	if t >= 0 && int(t) < len(tristateStrings) {
		return tristateStrings[t]
	}
	return fmt.Sprintf("unknown(%d)", int(t))
}

// TristateOf maps a boolean node value to True or False.
func TristateOf(v bool) Tristate {
	if v {
		return True
	}
	return False
}

// AsBool collapses the tristate to a boolean, using def for Undefined.
func (t Tristate) AsBool(def bool) bool {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return def
	}
}

// IsSet reports whether the lookup found an explicit value.
func (t Tristate) IsSet() bool { return t != Undefined }
