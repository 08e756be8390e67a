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

// Package partition splits the CPUs of a host into a low-latency set and a
// housekeeping set.
package partition

import (
	"strings"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/sysfs"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// Mode selects where the partition is read from.
type Mode string

const (
	// ReserveIO reads the housekeeping set from IOCPUsParam and isolates the rest.
	ReserveIO Mode = "io"
	// Isolate reads the low-latency set from IsolCPUsParam and keeps the rest for housekeeping.
	Isolate Mode = "isolation"
)

const (
	// IOCPUsParam is the boot parameter naming the housekeeping CPUs.
	IOCPUsParam = "klowlat.iocpus"
	// IsolCPUsParam is the kernel boot parameter naming the isolated CPUs.
	IsolCPUsParam = "isolcpus"
)

// ParseMode validates the textual form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ReserveIO, Isolate:
		return Mode(s), nil
	}
	return "", errors.Wrapf(isolation.ErrConfiguration, "unknown partition mode %q", s)
}

// Partition is the split of [0,Total) into two disjoint sets.
type Partition struct {
	LowLatency   cpuset.CPUSet
	Housekeeping cpuset.CPUSet
	Total        int
}

// String implements fmt.Stringer.
func (p Partition) String() string {
	return "lowlat=" + cpulist.Format(p.LowLatency) + " housekeeping=" + cpulist.Format(p.Housekeeping)
}

// New computes the partition of total CPUs according to mode and the boot
// command line.
func New(mode Mode, cmdline []string, total int) (Partition, error) {
	if total <= 0 {
		return Partition{}, errors.Wrapf(isolation.ErrConfiguration, "invalid CPU count %d", total)
	}
	if total == 1 {
		// No command line can fix this one.
		return Partition{}, errors.Wrap(isolation.ErrResourceUnavailable, "a single CPU host cannot be partitioned")
	}
	all := cpulist.All(total)

	var lowLatency, housekeeping cpuset.CPUSet
	switch mode {
	case ReserveIO:
		value, found := BootParam(cmdline, IOCPUsParam)
		if found {
			housekeeping = clamp(cpulist.Parse(value), total, IOCPUsParam)
		} else {
			housekeeping = DefaultHousekeeping(total)
			log.Infof("%s not set, using %s for housekeeping", IOCPUsParam, cpulist.Format(housekeeping))
		}
		lowLatency = all.Difference(housekeeping)
	case Isolate:
		value, found := BootParam(cmdline, IsolCPUsParam)
		if !found {
			return Partition{}, errors.Wrapf(isolation.ErrConfiguration, "%s not present on the kernel command line", IsolCPUsParam)
		}
		lowLatency = clamp(cpulist.Parse(value), total, IsolCPUsParam)
		housekeeping = all.Difference(lowLatency)
	default:
		return Partition{}, errors.Wrapf(isolation.ErrConfiguration, "unknown partition mode %q", mode)
	}

	if lowLatency.IsEmpty() {
		return Partition{}, errors.Wrap(isolation.ErrConfiguration, "no CPUs left for low latency work")
	}
	if housekeeping.IsEmpty() {
		return Partition{}, errors.Wrap(isolation.ErrConfiguration, "no CPUs left for housekeeping")
	}

	return Partition{
		LowLatency:   lowLatency,
		Housekeeping: housekeeping,
		Total:        total,
	}, nil
}

// DefaultHousekeeping returns the lowest ceil(total/10) CPUs.
func DefaultHousekeeping(total int) cpuset.CPUSet {
	return cpulist.All((total + 9) / 10)
}

func clamp(cpus cpuset.CPUSet, total int, param string) cpuset.CPUSet {
	kept, dropped := cpulist.Below(cpus, total)
	if !dropped.IsEmpty() {
		log.Warnf("%s names CPUs %s which do not exist on this host (%d CPUs), ignoring them",
			param, cpulist.Format(dropped), total)
	}
	return kept
}

// BootParam returns the value of key on the boot command line.
// As for the kernel, the last occurrence wins.
func BootParam(cmdline []string, key string) (string, bool) {
	var value string
	found := false
	for _, arg := range cmdline {
		k, v, hasValue := strings.Cut(arg, "=")
		if k != key {
			continue
		}
		found = true
		if hasValue {
			value = v
		} else {
			value = ""
		}
	}
	return value, found
}

// CmdLine returns the boot command line from procfs mounted at procRoot.
func CmdLine(procRoot string) ([]string, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open procfs at %q", procRoot)
	}
	cmdline, err := fs.CmdLine()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read kernel command line")
	}
	return cmdline, nil
}

// Detect returns the number of CPUs exposed by sysfs mounted at sysRoot.
// Offline CPUs are counted.
func Detect(sysRoot string) (int, error) {
	fs, err := sysfs.NewFS(sysRoot)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot open sysfs at %q", sysRoot)
	}
	cpus, err := fs.CPUs()
	if err != nil {
		return 0, errors.Wrap(err, "cannot enumerate CPUs")
	}
	if len(cpus) == 0 {
		return 0, errors.Wrap(isolation.ErrConfiguration, "no CPUs found in sysfs")
	}
	return len(cpus), nil
}
