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

package cgroup

import (
	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	errcollection "github.com/davidel/klowlat/pkg/utils/err_collection"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

const (
	// CPUSetMems is the name of the memory node attribute for a cpuset.
	CPUSetMems = "cpuset.mems"

	// CPUSetCpus is the name of the cpus attribute for a cpuset.
	CPUSetCpus = "cpuset.cpus"

	// CPUSetCPUExclusive is the name of the exclusive cpu attribute
	// for a cpuset.
	CPUSetCPUExclusive = "cpuset.cpu_exclusive"

	// CPUSetSchedLoadBalance is the name of the attribute enabling scheduler
	// load balancing across the cpus of a cpuset.
	CPUSetSchedLoadBalance = "cpuset.sched_load_balance"
)

// CPUSet represents a cgroup in the cpuset hierarchy.
type CPUSet interface {
	isolation.ProcessIsolation

	// Cgroup returns the underlying cgroup for this CPUSet.
	Cgroup() Cgroup

	// Cpus returns the set of cpus allocated to this CPUSet.
	Cpus() cpuset.CPUSet

	// Create instantiates the underlying cgroup and sets up its attributes.
	Create() error

	// Release moves every process of this CPUSet back to the root of the
	// hierarchy and removes the underlying cgroup.
	Release() error
}

// CPUSet describes a cgroup cpuset with core ids. Memory nodes are inherited
// from the root of the hierarchy.
type cpuSet struct {
	cgroup       Cgroup
	cpus         cpuset.CPUSet
	cpuExclusive bool
}

// NewCPUSet creates a new CPUSet at path in the hierarchy mounted at mount.
func NewCPUSet(mount Mount, path string, cpus cpuset.CPUSet, cpuExclusive bool) (CPUSet, error) {
	// Construct underlying cgroup.
	cg, err := NewCgroup(mount, path)
	if err != nil {
		return nil, err
	}
	if cg.IsRoot() {
		return nil, errors.New("cannot manage the root cpuset")
	}
	if cpus.IsEmpty() {
		return nil, errors.Wrapf(isolation.ErrConfiguration, "empty set of cpus provided for cpuset %q", path)
	}

	cs := &cpuSet{
		cgroup:       cg,
		cpus:         cpus,
		cpuExclusive: cpuExclusive,
	}
	return cs, nil
}

func (cs *cpuSet) Cgroup() Cgroup {
	return cs.cgroup
}

func (cs *cpuSet) Cpus() cpuset.CPUSet {
	return cs.cpus
}

// Create instantiates the underlying cgroup and sets up the necessary
// attributes. Every failure is a configuration error.
func (cs *cpuSet) Create() error {
	// When setting cpuset.cpu_exclusive, the attribute must first be set
	// for all cgroup ancestors, starting with the root of the hierarchy.
	// Ancestors other than the root must also hold memory nodes and a
	// superset of our cpus, which is not overwritten when already set.
	ancestors := cs.cgroup.Ancestors()
	root := ancestors[0]
	mems, err := root.Get(CPUSetMems)
	if err != nil {
		return errors.Wrapf(isolation.ErrConfiguration, "cannot read memory nodes of the root cpuset: %v", err)
	}

	for _, a := range ancestors[1:] {
		if err := a.Create(); err != nil {
			return errors.Wrap(isolation.ErrConfiguration, err.Error())
		}
		if err := cs.setupCgroup(a, mems, false); err != nil {
			return err
		}
	}

	if err := cs.cgroup.Create(); err != nil {
		return errors.Wrap(isolation.ErrConfiguration, err.Error())
	}
	return cs.setupCgroup(cs.cgroup, mems, true)
}

func (cs *cpuSet) setupCgroup(c Cgroup, mems string, own bool) error {
	// Set cpus without overwriting any currently set ranges of ancestors.
	current, err := c.Get(CPUSetCpus)
	if err != nil {
		return errors.Wrap(isolation.ErrConfiguration, err.Error())
	}
	if own || current == "" {
		if err := c.SetAndCheck(CPUSetCpus, cpulist.Format(cs.cpus)); err != nil {
			return errors.Wrap(isolation.ErrConfiguration, err.Error())
		}
	}

	// Memory nodes are a precondition for attaching processes, not part of
	// the isolation, so the kernel's normalized form is not compared.
	current, err = c.Get(CPUSetMems)
	if err != nil {
		return errors.Wrap(isolation.ErrConfiguration, err.Error())
	}
	if current == "" {
		if err := c.Set(CPUSetMems, mems); err != nil {
			return errors.Wrap(isolation.ErrConfiguration, err.Error())
		}
	}

	// Set cpu exclusivity bit if necessary.
	if cs.cpuExclusive {
		current, err = c.Get(CPUSetCPUExclusive)
		if err != nil {
			return errors.Wrap(isolation.ErrConfiguration, err.Error())
		}
		if current != "1" {
			if err := c.SetAndCheck(CPUSetCPUExclusive, "1"); err != nil {
				return errors.Wrap(isolation.ErrConfiguration, err.Error())
			}
		}
	}

	return nil
}

// Isolate moves the process with the given pid into the underlying cgroup.
// The cgroup must exist first.
func (cs *cpuSet) Isolate(taskPid isolation.TaskPID) error {
	return cs.cgroup.Isolate(taskPid)
}

func (cs *cpuSet) Release() error {
	exists, err := cs.cgroup.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	root := cs.cgroup.Ancestors()[0]
	pids, err := cs.cgroup.Tasks()
	if err != nil {
		return err
	}

	var errCollection errcollection.ErrorCollection
	for _, pid := range pids.AsSlice() {
		if err := root.Isolate(isolation.TaskPID(pid)); err != nil {
			log.Warnf("cannot move pid %d out of cpuset %q: %v", pid, cs.cgroup.Path(), err)
			errCollection.Add(err)
		}
	}
	if err := errCollection.GetErrIfAny(); err != nil {
		return errors.Wrapf(err, "cannot empty cpuset %q", cs.cgroup.Path())
	}

	// Children forked while the cpuset was being emptied stay behind.
	remaining, err := cs.cgroup.Tasks()
	if err != nil {
		return err
	}
	if !remaining.Empty() {
		return errors.Errorf("cpuset %q still holds pids %v (%v new since release started)",
			cs.cgroup.Path(), remaining.AsSlice(), remaining.Difference(pids).AsSlice())
	}
	return cs.cgroup.Destroy()
}
