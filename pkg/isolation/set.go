// Copyright (c) 2017 Intel Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package isolation

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IntSet represents a traditional set type so we can do unions and differences
// on pids read from cgroups.
type IntSet map[int]struct{}

// Empty returns true iff this set has exactly zero elements.
func (s IntSet) Empty() bool {
	return len(s) == 0
}

// Contains returns true if the supplied element is present in this set.
func (s IntSet) Contains(elem int) bool {
	_, found := s[elem]
	return found
}

// Add mutates this set to include the supplied element.
func (s IntSet) Add(elem int) {
	s[elem] = struct{}{}
}

// Remove mutates this set to remove the supplied element.
func (s IntSet) Remove(elem int) {
	delete(s, elem) // does nothing if item does not exist
}

// Union returns a new set that contains all of the elements from this set
// and all of the elements from the supplied set.
// It does not mutate either set.
func (s IntSet) Union(t IntSet) IntSet {
	result := NewIntSet()
	for elem := range s {
		result.Add(elem)
	}
	for elem := range t {
		result.Add(elem)
	}
	return result
}

// Difference returns a new set that contains all of the elements that are
// present in this set and not the supplied set.
// It does not mutate either set.
func (s IntSet) Difference(t IntSet) IntSet {
	result := NewIntSet()
	for elem := range s {
		if !t.Contains(elem) {
			result.Add(elem)
		}
	}
	return result
}

// NewIntSet returns a new set containing all of the supplied elements.
func NewIntSet(elems ...int) IntSet {
	result := IntSet{}
	for _, elem := range elems {
		result.Add(elem)
	}
	return result
}

// NewIntSetFromFields creates a set from whitespace separated integers,
// the format of cgroup "tasks" and "cgroup.procs" files.
func NewIntSetFromFields(fields string) (IntSet, error) {
	result := IntSet{}
	for _, field := range strings.Fields(fields) {
		elem, err := strconv.Atoi(field)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot parse %q as integer", field)
		}
		result.Add(elem)
	}
	return result, nil
}

// AsSlice returns the elements of this set in ascending order.
func (s IntSet) AsSlice() []int {
	result := make([]int, 0, len(s))
	for elem := range s {
		result = append(result, elem)
	}
	sort.Ints(result)
	return result
}
