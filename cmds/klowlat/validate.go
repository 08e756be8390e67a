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

package main

import (
	"regexp"
	"strconv"

	"github.com/davidel/klowlat/pkg/enforcer"
	"github.com/davidel/klowlat/pkg/tasks"
	"github.com/davidel/klowlat/pkg/utils/sysctl"
	"github.com/prometheus/procfs/sysfs"
	"github.com/sirupsen/logrus"
)

const performanceGovernor = "performance"

var irqbalancePattern = regexp.MustCompile(`^irqbalance$`)

// checkNMIWatchdog warns when the NMI watchdog keeps firing on every CPU.
func checkNMIWatchdog(host enforcer.Host) {
	value, err := sysctl.GetFrom(host.ProcRoot, "kernel.nmi_watchdog")
	if err != nil {
		logrus.Debugf("could not read kernel.nmi_watchdog: %v", err)
		return
	}
	if value == "1" {
		logrus.Warn("kernel.nmi_watchdog is enabled and interrupts every CPU periodically (echo 0 > /proc/sys/kernel/nmi_watchdog as root).")
	}
}

// checkIRQBalance warns when irqbalance runs, since it rewrites IRQ affinities behind our back.
func checkIRQBalance(host enforcer.Host) {
	table, err := tasks.NewTable(host.ProcRoot)
	if err != nil {
		logrus.Debugf("could not open the process table: %v", err)
		return
	}
	pids, err := table.FindByName(irqbalancePattern)
	if err != nil {
		logrus.Debugf("could not look for irqbalance: %v", err)
		return
	}
	if len(pids) > 0 {
		logrus.Warnf("irqbalance is running (pid %v) and may move interrupts back to the low latency CPUs.", pids)
	}
}

// checkCPUPowerGovernor warns about low latency CPUs not using the performance governor.
// governor path: https://www.kernel.org/doc/Documentation/cpu-freq/user-guide.txt
func checkCPUPowerGovernor(host enforcer.Host) {
	fs, err := sysfs.NewFS(host.SysRoot)
	if err != nil {
		logrus.Debugf("could not open sysfs: %v", err)
		return
	}
	stats, err := fs.SystemCpufreq()
	if err != nil {
		logrus.Debugf("could not read cpufreq: %v", err)
		return
	}
	for _, stat := range stats {
		cpu, err := strconv.Atoi(stat.Name)
		if err != nil || !host.Partition.LowLatency.Contains(cpu) {
			continue
		}
		logrus.Debugf("governor cpu%d: %q", cpu, stat.Governor)
		if stat.Governor != performanceGovernor {
			logrus.Warnf("cpu%d scaling_governor=%q should be %q to avoid wakeup latency (cpupower frequency-set -g performance).",
				cpu, stat.Governor, performanceGovernor)
		}
	}
}

// validateOS checks the host for settings which add jitter.
// Note: it only warns.
func validateOS(host enforcer.Host) {
	checkNMIWatchdog(host)
	checkIRQBalance(host)
	checkCPUPowerGovernor(host)
}
