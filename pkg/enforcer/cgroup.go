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

package enforcer

import (
	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/davidel/klowlat/pkg/isolation/cgroup"
	errcollection "github.com/davidel/klowlat/pkg/utils/err_collection"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// HousekeepingCPUSet is the cpuset holding every relocated task.
	HousekeepingCPUSet = "klowlat_io"
	// LowLatencyCPUSet is the cpuset reserved for the workload.
	LowLatencyCPUSet = "klowlat_ll"
)

// CgroupStrategy confines tasks with two exclusive cpusets.
type CgroupStrategy struct {
	host       Host
	mountPoint string
	mounts     *cgroup.Mounts

	housekeeping cgroup.CPUSet
	lowLatency   cgroup.CPUSet
}

// NewCgroupStrategy returns a CgroupStrategy which mounts the cpuset
// controller at mountPoint when it is not mounted yet.
func NewCgroupStrategy(host Host, mountPoint string) *CgroupStrategy {
	return &CgroupStrategy{
		host:       host,
		mountPoint: mountPoint,
		mounts:     cgroup.NewMounts(host.ProcRoot),
	}
}

// Name implements Strategy.
func (s *CgroupStrategy) Name() string {
	return CgroupMode
}

func (s *CgroupStrategy) cpusets(mount cgroup.Mount) error {
	var err error
	s.housekeeping, err = cgroup.NewCPUSet(mount, HousekeepingCPUSet, s.host.Partition.Housekeeping, true)
	if err != nil {
		return err
	}
	s.lowLatency, err = cgroup.NewCPUSet(mount, LowLatencyCPUSet, s.host.Partition.LowLatency, true)
	return err
}

// Prepare mounts the cpuset controller if needed and creates both cpusets.
func (s *CgroupStrategy) Prepare() error {
	mount, err := cgroup.EnsureCPUSet(s.mounts, s.mountPoint, s.host.Executor, s.host.CommandTimeout)
	if err != nil {
		return err
	}
	if err := s.cpusets(mount); err != nil {
		return err
	}

	for _, cs := range []cgroup.CPUSet{s.housekeeping, s.lowLatency} {
		if err := cs.Create(); err != nil {
			return err
		}
		log.Infof("cpuset %s holds CPUs %s", cs.Cgroup().Path(), cpulist.Format(cs.Cpus()))
	}

	// Load balancing is turned off at the root so that the children define
	// the scheduling domains, then within the low-latency cpuset.
	root := s.lowLatency.Cgroup().Ancestors()[0]
	for _, cg := range []cgroup.Cgroup{root, s.lowLatency.Cgroup()} {
		if err := cg.Set(cgroup.CPUSetSchedLoadBalance, "0"); err != nil {
			log.Warnf("cannot disable load balancing in cpuset %s: %v", cg.Path(), err)
		}
	}
	return nil
}

// Housekeeping implements Strategy.
func (s *CgroupStrategy) Housekeeping() isolation.ProcessIsolation {
	return s.housekeeping
}

// LowLatency implements Strategy.
func (s *CgroupStrategy) LowLatency() isolation.ProcessIsolation {
	return s.lowLatency
}

// Teardown moves every task back to the root cpuset and removes both cpusets.
func (s *CgroupStrategy) Teardown() error {
	mount, found, err := s.mounts.CPUSet()
	if err != nil {
		return err
	}
	if !found {
		log.Info("no cpuset controller mounted, nothing to tear down")
		return nil
	}
	if err := s.cpusets(mount); err != nil {
		return err
	}

	var errCollection errcollection.ErrorCollection
	for _, cs := range []cgroup.CPUSet{s.lowLatency, s.housekeeping} {
		errCollection.Add(cs.Release())
	}

	root := s.lowLatency.Cgroup().Ancestors()[0]
	if err := root.Set(cgroup.CPUSetSchedLoadBalance, "1"); err != nil {
		log.Warnf("cannot enable load balancing in the root cpuset: %v", err)
	}
	if err := errCollection.GetErrIfAny(); err != nil {
		return errors.Wrap(err, "cannot remove cpusets")
	}
	return nil
}
