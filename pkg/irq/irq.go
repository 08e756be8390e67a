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

// Package irq steers hardware interrupts to a set of CPUs.
package irq

import (
	"fmt"
	"io/ioutil"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

const (
	affinityListFile    = "smp_affinity_list"
	defaultAffinityFile = "default_smp_affinity"
)

// Report tells which interrupts were moved and which kept their affinity.
type Report struct {
	Moved  []int
	Failed []int
}

// Relocator changes interrupt affinity through procfs mounted at procRoot.
type Relocator struct {
	procRoot string
}

// NewRelocator returns a Relocator for procfs mounted at procRoot.
func NewRelocator(procRoot string) Relocator {
	return Relocator{procRoot: procRoot}
}

// IRQs returns the numbers of all interrupts in ascending order.
func (r Relocator) IRQs() ([]int, error) {
	entries, err := ioutil.ReadDir(path.Join(r.procRoot, "irq"))
	if err != nil {
		return nil, errors.Wrap(err, "cannot list interrupts")
	}
	var irqs []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		irqs = append(irqs, n)
	}
	sort.Ints(irqs)
	return irqs, nil
}

// Relocate sets the affinity of every interrupt to cpus. Interrupts whose
// affinity cannot be changed, such as per-CPU timers, are skipped.
func (r Relocator) Relocate(cpus cpuset.CPUSet) (Report, error) {
	report := Report{Moved: []int{}, Failed: []int{}}
	if cpus.IsEmpty() {
		return report, errors.New("cannot move interrupts to an empty CPU set")
	}
	irqs, err := r.IRQs()
	if err != nil {
		return report, err
	}

	list := cpulist.Format(cpus)
	for _, n := range irqs {
		file := path.Join(r.procRoot, "irq", strconv.Itoa(n), affinityListFile)
		if err := ioutil.WriteFile(file, []byte(list), 0644); err != nil {
			log.Debugf("cannot set affinity of irq %d to %s: %v", n, list, err)
			report.Failed = append(report.Failed, n)
			continue
		}
		report.Moved = append(report.Moved, n)
	}
	log.Infof("moved %d interrupts to CPUs %s, %d kept their affinity", len(report.Moved), list, len(report.Failed))
	return report, nil
}

// SetDefaultAffinity sets the affinity newly registered interrupts get.
func (r Relocator) SetDefaultAffinity(cpus cpuset.CPUSet, total int) error {
	if cpus.IsEmpty() {
		return errors.New("cannot set default interrupt affinity to an empty CPU set")
	}
	mask := Mask(cpus, total)
	file := path.Join(r.procRoot, "irq", defaultAffinityFile)
	if err := ioutil.WriteFile(file, []byte(mask), 0644); err != nil {
		return errors.Wrapf(err, "cannot set default interrupt affinity to %s", mask)
	}
	return nil
}

// Mask renders cpus in the hexadecimal bitmap format of smp_affinity files:
// comma separated groups of 32 CPUs, most significant group first. Enough
// groups to cover total CPUs are written.
func Mask(cpus cpuset.CPUSet, total int) string {
	groups := (total + 31) / 32
	for _, cpu := range cpus.List() {
		if cpu/32+1 > groups {
			groups = cpu/32 + 1
		}
	}
	if groups == 0 {
		groups = 1
	}

	words := make([]uint32, groups)
	for _, cpu := range cpus.List() {
		words[cpu/32] |= 1 << uint(cpu%32)
	}

	parts := make([]string, groups)
	for i, word := range words {
		parts[groups-1-i] = fmt.Sprintf("%08x", word)
	}
	return strings.Join(parts, ",")
}
