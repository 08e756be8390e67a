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
	"os"
	"regexp"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/irq"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/davidel/klowlat/pkg/tasks"
	errcollection "github.com/davidel/klowlat/pkg/utils/err_collection"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Report gathers the outcome of every best-effort step of Setup.
type Report struct {
	MCEFailed []int

	UserMoved  int
	UserFailed []int

	KernelMoved  int
	KernelFailed []int

	IRQs irq.Report

	DefaultAffinity error
}

// Log writes a summary of the report.
func (r Report) Log() {
	log.Infof("user tasks: %d moved, %d failed", r.UserMoved, len(r.UserFailed))
	log.Infof("kernel threads: %d moved, %d failed", r.KernelMoved, len(r.KernelFailed))
	log.Infof("interrupts: %d moved, %d failed", len(r.IRQs.Moved), len(r.IRQs.Failed))
	if len(r.MCEFailed) > 0 {
		log.Warnf("machine check polling still enabled on %d CPUs", len(r.MCEFailed))
	}
	if len(r.UserFailed) > 0 {
		log.Warnf("user tasks left in place: %v", r.UserFailed)
	}
	if len(r.KernelFailed) > 0 {
		log.Warnf("kernel threads left in place: %v", r.KernelFailed)
	}
	if r.DefaultAffinity != nil {
		log.Warnf("default interrupt affinity unchanged: %v", r.DefaultAffinity)
	}
}

// Enforcer moves everything but the workload onto the housekeeping CPUs.
type Enforcer struct {
	host     Host
	strategy Strategy
	table    tasks.Table
	irqs     irq.Relocator
	kthreads []*regexp.Regexp
	self     int
}

// New returns an Enforcer using strategy. Kernel threads matching one of
// kthreads are relocated together with the RCU callback threads.
func New(host Host, strategy Strategy, kthreads []*regexp.Regexp) (*Enforcer, error) {
	table, err := tasks.NewTable(host.ProcRoot)
	if err != nil {
		return nil, err
	}
	return &Enforcer{
		host:     host,
		strategy: strategy,
		table:    table,
		irqs:     irq.NewRelocator(host.ProcRoot),
		kthreads: append([]*regexp.Regexp{tasks.RCUPattern}, kthreads...),
		self:     os.Getpid(),
	}, nil
}

// Strategy returns the strategy the enforcer was built with.
func (e *Enforcer) Strategy() Strategy {
	return e.strategy
}

// Setup isolates the low-latency CPUs. Only the failure of the strategy
// itself or of listing tasks and interrupts is an error, other failures
// are gathered in the report.
func (e *Enforcer) Setup() (Report, error) {
	p := e.host.Partition
	report := Report{}
	log.Infof("isolating CPUs %s with %s, housekeeping on %s",
		cpulist.Format(p.LowLatency), e.strategy.Name(), cpulist.Format(p.Housekeeping))

	report.MCEFailed = disableMCEPolling(e.host.SysRoot, p.LowLatency)

	if err := e.strategy.Prepare(); err != nil {
		return report, errors.Wrapf(err, "cannot prepare %s isolation", e.strategy.Name())
	}
	housekeeping := e.strategy.Housekeeping()

	users, err := e.table.Select(tasks.User)
	if err != nil {
		return report, err
	}
	users = e.withoutSelf(users)
	report.UserFailed = tasks.Relocate(users, housekeeping)
	report.UserMoved = len(users) - len(report.UserFailed)

	kthreads, err := e.kernelThreads()
	if err != nil {
		return report, err
	}
	report.KernelFailed = tasks.Relocate(kthreads, housekeeping)
	report.KernelMoved = len(kthreads) - len(report.KernelFailed)

	report.IRQs, err = e.irqs.Relocate(p.Housekeeping)
	if err != nil {
		return report, err
	}
	report.DefaultAffinity = e.irqs.SetDefaultAffinity(p.Housekeeping, p.Total)

	return report, nil
}

func (e *Enforcer) withoutSelf(pids []int) []int {
	set := isolation.NewIntSet(pids...)
	set.Remove(e.self)
	return set.AsSlice()
}

// kernelThreads returns the kernel threads matching any of the patterns, once each.
func (e *Enforcer) kernelThreads() ([]int, error) {
	matched := isolation.NewIntSet()
	for _, pattern := range e.kthreads {
		pids, err := e.table.FindByName(pattern)
		if err != nil {
			return nil, err
		}
		matched = matched.Union(isolation.NewIntSet(pids...))
	}
	var result []int
	for _, pid := range matched.AsSlice() {
		if e.table.Classify(pid) == tasks.Kernel {
			result = append(result, pid)
		}
	}
	return result, nil
}

// Teardown undoes the strategy and lets interrupts run anywhere again.
func (e *Enforcer) Teardown() error {
	var errCollection errcollection.ErrorCollection
	errCollection.Add(e.strategy.Teardown())

	all := cpulist.All(e.host.Partition.Total)
	if _, err := e.irqs.Relocate(all); err != nil {
		errCollection.Add(err)
	}
	errCollection.Add(e.irqs.SetDefaultAffinity(all, e.host.Partition.Total))
	return errCollection.GetErrIfAny()
}
