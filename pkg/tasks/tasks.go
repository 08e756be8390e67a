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

// Package tasks finds processes and kernel threads and moves them between CPU sets.
package tasks

import (
	"regexp"

	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
)

// Class tells kernel threads from user processes.
type Class int

const (
	// Unknown is a task whose command line cannot be read, usually because it exited.
	Unknown Class = iota
	// Kernel is a kernel thread, which has an empty command line.
	Kernel
	// User is an ordinary process.
	User
)

func (c Class) String() string {
	switch c {
	case Kernel:
		return "kernel"
	case User:
		return "user"
	}
	return "unknown"
}

// RCUPattern matches the per-CPU kernel threads running RCU callbacks
// (rcuc/N, rcuob/N, rcuop/N, rcuos/N). They can be moved off their CPU.
var RCUPattern = regexp.MustCompile(`^rcu[a-z]*/\d+$`)

// Table reads the process table of procfs mounted at a given root.
// Every call reads live state.
type Table struct {
	fs procfs.FS
}

// NewTable returns a Table for procfs mounted at procRoot.
func NewTable(procRoot string) (Table, error) {
	fs, err := procfs.NewFS(procRoot)
	if err != nil {
		return Table{}, errors.Wrapf(err, "cannot open procfs at %q", procRoot)
	}
	return Table{fs: fs}, nil
}

// Enumerate returns the pids of all processes.
func (t Table) Enumerate() ([]int, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list processes")
	}
	pids := make([]int, 0, len(procs))
	for _, p := range procs {
		pids = append(pids, p.PID)
	}
	return pids, nil
}

// Classify tells the class of the task with the given pid.
func (t Table) Classify(pid int) Class {
	p, err := t.fs.Proc(pid)
	if err != nil {
		return Unknown
	}
	cmdline, err := p.CmdLine()
	if err != nil {
		return Unknown
	}
	if len(cmdline) == 0 {
		return Kernel
	}
	return User
}

// Select returns the pids of all tasks of the given class.
func (t Table) Select(class Class) ([]int, error) {
	pids, err := t.Enumerate()
	if err != nil {
		return nil, err
	}
	var selected []int
	for _, pid := range pids {
		if t.Classify(pid) == class {
			selected = append(selected, pid)
		}
	}
	return selected, nil
}

// FindByName returns the pids of the tasks whose name matches pattern.
// Tasks which exit during the scan are left out.
func (t Table) FindByName(pattern *regexp.Regexp) ([]int, error) {
	procs, err := t.fs.AllProcs()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list processes")
	}
	var pids []int
	for _, p := range procs {
		comm, err := p.Comm()
		if err != nil {
			continue
		}
		if pattern.MatchString(comm) {
			pids = append(pids, p.PID)
		}
	}
	return pids, nil
}

// Relocate places every task on target. Failures are logged and skipped.
// It returns the pids which could not be placed.
func Relocate(pids []int, target isolation.ProcessIsolation) []int {
	failed := []int{}
	for _, pid := range pids {
		if err := target.Isolate(isolation.TaskPID(pid)); err != nil {
			log.Warnf("cannot relocate pid %d: %v", pid, err)
			failed = append(failed, pid)
		}
	}
	return failed
}
