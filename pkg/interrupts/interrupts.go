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

// Package interrupts samples the per-CPU interrupt counters of /proc/interrupts.
package interrupts

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
)

// Snapshot maps an interrupt name to its per-CPU counters. The position
// in the slice is the CPU column.
type Snapshot map[string][]uint64

// Parse converts the interrupt table read by procfs:
//
//	           CPU0       CPU1
//	  1:          9          0   IO-APIC   1-edge      i8042
//	NMI:          0          0   Non-maskable interrupts
//
// procfs takes one counter column per CPU named in the header, so numeric
// descriptions are never mistaken for counters.
func Parse(interrupts procfs.Interrupts) (Snapshot, error) {
	snapshot := make(Snapshot, len(interrupts))
	for name, interrupt := range interrupts {
		counts := make([]uint64, len(interrupt.Values))
		for cpu, value := range interrupt.Values {
			count, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid counter %q for interrupt %s on CPU%d", value, name, cpu)
			}
			counts[cpu] = count
		}
		snapshot[name] = counts
	}
	return snapshot, nil
}

// Sampler takes interrupt snapshots from procfs mounted at a given root.
type Sampler struct {
	procRoot string
}

// NewSampler returns a Sampler reading the interrupts of procRoot.
func NewSampler(procRoot string) Sampler {
	return Sampler{procRoot: procRoot}
}

// Snapshot reads the current interrupt counters.
func (s Sampler) Snapshot() (Snapshot, error) {
	fs, err := procfs.NewFS(s.procRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open procfs at %q", s.procRoot)
	}
	self, err := fs.Self()
	if err != nil {
		return nil, errors.Wrap(err, "cannot find own process in procfs")
	}
	interrupts, err := self.Interrupts()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read interrupt counters")
	}
	return Parse(interrupts)
}
