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

// Package enforcer keeps housekeeping work (user tasks, kernel threads
// and interrupts) away from the low-latency CPUs.
package enforcer

import (
	"time"

	"github.com/davidel/klowlat/pkg/executor"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/davidel/klowlat/pkg/partition"
	"github.com/pkg/errors"
	"k8s.io/utils/cpuset"
)

const (
	// CgroupMode confines tasks with cpusets.
	CgroupMode = "cgroup"
	// HotplugMode flushes the low-latency CPUs by taking them offline and
	// confines tasks with their affinity.
	HotplugMode = "hotplug"
)

const (
	// AffinitySyscall sets affinity with sched_setaffinity(2).
	AffinitySyscall = "syscall"
	// AffinityTaskset sets affinity by running taskset(1).
	AffinityTaskset = "taskset"
)

// Host describes the machine being isolated.
type Host struct {
	ProcRoot  string
	SysRoot   string
	Partition partition.Partition

	// Executor runs the external utilities (mount, taskset).
	Executor       executor.Executor
	CommandTimeout time.Duration
}

// Strategy confines processes to either side of the partition.
type Strategy interface {
	// Name returns the mode name of the strategy.
	Name() string
	// Prepare readies the host; placements are usable only afterwards.
	Prepare() error
	// Housekeeping places processes onto the housekeeping CPUs.
	Housekeeping() isolation.ProcessIsolation
	// LowLatency places processes onto the low-latency CPUs.
	LowLatency() isolation.ProcessIsolation
	// Teardown undoes what Prepare did.
	Teardown() error
}

// NewStrategy returns the strategy for mode.
func NewStrategy(mode string, host Host, cpusetMount string, affinityTool string) (Strategy, error) {
	switch mode {
	case CgroupMode:
		return NewCgroupStrategy(host, cpusetMount), nil
	case HotplugMode:
		if affinityTool != AffinitySyscall && affinityTool != AffinityTaskset {
			return nil, errors.Wrapf(isolation.ErrConfiguration, "unknown affinity tool %q", affinityTool)
		}
		return NewHotplugStrategy(host, affinityTool), nil
	}
	return nil, errors.Wrapf(isolation.ErrConfiguration, "unknown isolation mode %q", mode)
}

// NewPlacement returns the affinity based placement onto cpus using tool.
func NewPlacement(tool string, cpus cpuset.CPUSet, host Host) isolation.ProcessIsolation {
	if tool == AffinityTaskset {
		return isolation.NewTaskset(cpus, host.Executor, host.CommandTimeout)
	}
	return isolation.NewAffinity(cpus, host.ProcRoot)
}
