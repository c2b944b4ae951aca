// flex_list.go
//
// A library catalog and lending service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of librarydb.
// librarydb is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// librarydb is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with librarydb.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package types

import (
	"encoding/json"
	"strings"
)

// NameList is a list of display names that can be unmarshaled from either a JSON array
// or a single comma separated JSON string, as submitted by catalog forms.
type NameList []string

// UnmarshalJSON implements the json.Unmarshaler interface.
func (n *NameList) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	// If it starts with '[', treat it as a normal array
	if data[0] == '[' {
		var slice []string
		if err := json.Unmarshal(data, &slice); err != nil {
			return err
		}
		*n = CleanNames(slice)
		return nil
	}

	// Otherwise, treat it as a comma separated string
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return err
	}
	*n = SplitNames(joined)
	return nil
}

// Slice converts NameList back to []string.
func (n NameList) Slice() []string {
	return []string(n)
}

// SplitNames splits a comma separated list of names.
func SplitNames(joined string) NameList {
	return CleanNames(strings.Split(joined, ","))
}

// CleanNames trims each name, drops blanks and collapses duplicates, keeping first occurrence order.
func CleanNames(names []string) NameList {
	seen := make(map[string]struct{}, len(names))
	out := make(NameList, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
