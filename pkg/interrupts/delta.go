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

package interrupts

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"k8s.io/utils/cpuset"
)

// ErrColumnMismatch is returned by Diff when an interrupt has a different
// number of CPU columns in the two snapshots.
var ErrColumnMismatch = errors.New("interrupt counter columns differ between snapshots")

// Delta maps an interrupt name to the per-CPU change of its counters.
type Delta map[string][]int64

// Diff subtracts before from after, per interrupt and CPU. Interrupts which
// appear only in after contribute their raw counters, interrupts which
// disappeared are omitted.
func Diff(before, after Snapshot) (Delta, error) {
	delta := make(Delta, len(after))
	for name, counts := range after {
		previous, found := before[name]
		if found && len(previous) != len(counts) {
			return nil, errors.Wrapf(ErrColumnMismatch, "interrupt %s has %d columns before and %d after",
				name, len(previous), len(counts))
		}
		diff := make([]int64, len(counts))
		for cpu, count := range counts {
			diff[cpu] = int64(count)
			if found {
				diff[cpu] -= int64(previous[cpu])
			}
		}
		delta[name] = diff
	}
	return delta, nil
}

// Only returns a copy of the delta where counters of CPUs outside of cpus are zeroed.
func (d Delta) Only(cpus cpuset.CPUSet) Delta {
	result := make(Delta, len(d))
	for name, counts := range d {
		restricted := make([]int64, len(counts))
		for cpu, count := range counts {
			if cpus.Contains(cpu) {
				restricted[cpu] = count
			}
		}
		result[name] = restricted
	}
	return result
}

// Names returns the interrupts with at least one non-zero counter, sorted.
func (d Delta) Names() []string {
	var names []string
	for name, counts := range d {
		for _, count := range counts {
			if count != 0 {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// Render writes one line per interrupt with non-zero counters, for instance:
//
//	[i8042] { CPU0:2, CPU1:5 }
//
// Zero counters are left out.
func Render(w io.Writer, d Delta) error {
	for _, name := range d.Names() {
		var entries []string
		for cpu, count := range d[name] {
			if count != 0 {
				entries = append(entries, fmt.Sprintf("CPU%d:%d", cpu, count))
			}
		}
		if _, err := fmt.Fprintf(w, "[%s] { %s }\n", name, strings.Join(entries, ", ")); err != nil {
			return errors.Wrap(err, "cannot write interrupt report")
		}
	}
	return nil
}

// RenderTable writes the same report as Render as a table with one column
// per CPU which saw any interrupt.
func RenderTable(w io.Writer, d Delta) {
	names := d.Names()

	var busy []int
	for cpu := 0; ; cpu++ {
		inRange, seen := false, false
		for _, name := range names {
			if cpu < len(d[name]) {
				inRange = true
				if d[name][cpu] != 0 {
					seen = true
				}
			}
		}
		if !inRange {
			break
		}
		if seen {
			busy = append(busy, cpu)
		}
	}

	headers := []string{"IRQ"}
	for _, cpu := range busy {
		headers = append(headers, "CPU"+strconv.Itoa(cpu))
	}

	output := tablewriter.NewWriter(w)
	output.SetHeader(headers)
	for _, name := range names {
		row := []string{name}
		for _, cpu := range busy {
			count := int64(0)
			if cpu < len(d[name]) {
				count = d[name][cpu]
			}
			row = append(row, strconv.FormatInt(count, 10))
		}
		output.Append(row)
	}
	output.Render()
}
