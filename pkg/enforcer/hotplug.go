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
	"fmt"
	"io/ioutil"
	"path"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// HotplugStrategy flushes pending housekeeping work off the low-latency
// CPUs by cycling them offline and online, and confines tasks with their
// affinity mask.
type HotplugStrategy struct {
	host         Host
	housekeeping isolation.ProcessIsolation
	lowLatency   isolation.ProcessIsolation

	write func(file string, value string) error
}

func writeSysfs(file string, value string) error {
	return ioutil.WriteFile(file, []byte(value), 0644)
}

// NewHotplugStrategy returns a HotplugStrategy setting affinity with tool.
func NewHotplugStrategy(host Host, tool string) *HotplugStrategy {
	return &HotplugStrategy{
		host:         host,
		housekeeping: NewPlacement(tool, host.Partition.Housekeeping, host),
		lowLatency:   NewPlacement(tool, host.Partition.LowLatency, host),
		write:        writeSysfs,
	}
}

// Name implements Strategy.
func (s *HotplugStrategy) Name() string {
	return HotplugMode
}

// Prepare takes every low-latency CPU offline, then brings them all back.
// The second pass starts only after the first one is complete.
// CPUs which cannot be switched are skipped.
func (s *HotplugStrategy) Prepare() error {
	cpus := s.host.Partition.LowLatency
	offline := s.setOnline(cpus, false)
	log.Infof("CPUs %s taken offline", cpulist.Format(offline))
	online := s.setOnline(cpus, true)
	log.Infof("CPUs %s brought back online", cpulist.Format(online))
	return nil
}

func (s *HotplugStrategy) setOnline(cpus cpuset.CPUSet, online bool) cpuset.CPUSet {
	value := "0"
	if online {
		value = "1"
	}
	var done []int
	for _, cpu := range cpus.List() {
		file := path.Join(s.host.SysRoot, "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu), "online")
		if err := s.write(file, value); err != nil {
			log.Warnf("cannot write %s to %s: %v", value, file, err)
			continue
		}
		done = append(done, cpu)
	}
	return cpuset.New(done...)
}

// Housekeeping implements Strategy.
func (s *HotplugStrategy) Housekeeping() isolation.ProcessIsolation {
	return s.housekeeping
}

// LowLatency implements Strategy.
func (s *HotplugStrategy) LowLatency() isolation.ProcessIsolation {
	return s.lowLatency
}

// Teardown implements Strategy. Nothing outlives Prepare.
func (s *HotplugStrategy) Teardown() error {
	return nil
}
