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

package conf

import (
	"strings"

	"gopkg.in/alecthomas/kingpin.v2"
)

const stringListDelimiter = ","

// StringListValue is a custom kingpin value for flags whose parameters are
// string slices delimited by `stringListDelimiter`.
// For a flag defined like this:
// `flag = StringList(kingpin.Flag("kthread", "help"))`
//
// `--kthread=A,B --kthread=C` gives a slice with A, B and C. Empty items
// and duplicates are dropped.
type StringListValue []string

// Set splits the input and appends the new items. Implements kingpin.Value.
func (s *StringListValue) Set(value string) error {
	for _, item := range strings.Split(value, stringListDelimiter) {
		item = strings.TrimSpace(item)
		if item == "" || s.contains(item) {
			continue
		}
		*s = append(*s, item)
	}
	return nil
}

func (s *StringListValue) contains(item string) bool {
	for _, existing := range *s {
		if existing == item {
			return true
		}
	}
	return false
}

// Get implements kingpin.Getter.
func (s *StringListValue) Get() interface{} {
	return []string(*s)
}

// String implements kingpin.Value.
func (s *StringListValue) String() string {
	return strings.Join(*s, stringListDelimiter)
}

// IsCumulative implements optional interface (kingpin.repeatableFlag) for flags that can be repeated.
func (s *StringListValue) IsCumulative() bool {
	return true
}

// StringList is a helper for defining kingpin flags.
func StringList(s kingpin.Settings) (target *[]string) {
	target = new([]string)
	s.SetValue((*StringListValue)(target))
	return
}
