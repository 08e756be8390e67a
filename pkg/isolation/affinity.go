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

package isolation

import (
	errcollection "github.com/davidel/klowlat/pkg/utils/err_collection"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"k8s.io/utils/cpuset"
)

// maxThreadPasses bounds how often the thread list of a process is re-read
// to catch threads spawned while the affinity was being changed.
const maxThreadPasses = 5

// Affinity places processes by setting the CPU affinity mask of each of their threads.
type Affinity struct {
	cpus     cpuset.CPUSet
	procRoot string

	setAffinity func(tid int, mask *unix.CPUSet) error
}

// NewAffinity is a constructor for Affinity. Threads are listed from procfs
// mounted at procRoot.
func NewAffinity(cpus cpuset.CPUSet, procRoot string) Affinity {
	return Affinity{
		cpus:        cpus,
		procRoot:    procRoot,
		setAffinity: unix.SchedSetaffinity,
	}
}

// Isolate implements ProcessIsolation interface.
// Every thread of the process is moved; threads which exit meanwhile are skipped.
func (a Affinity) Isolate(taskPid TaskPID) error {
	fs, err := procfs.NewFS(a.procRoot)
	if err != nil {
		return errors.Wrapf(err, "cannot open procfs at %q", a.procRoot)
	}
	mask := Mask(a.cpus)

	done := NewIntSet()
	var errCollection errcollection.ErrorCollection
	for pass := 0; pass < maxThreadPasses; pass++ {
		threads, err := fs.AllThreads(int(taskPid))
		if err != nil {
			if pass == 0 {
				return errors.Wrapf(err, "cannot list threads of pid %d", taskPid)
			}
			break
		}
		found := NewIntSet()
		for _, thread := range threads {
			found.Add(thread.PID)
		}
		pending := found.Difference(done)
		if pending.Empty() {
			break
		}
		for _, tid := range pending.AsSlice() {
			done.Add(tid)
			err := a.setAffinity(tid, &mask)
			if errors.Is(err, unix.ESRCH) {
				continue
			}
			if err != nil {
				errCollection.Add(errors.Wrapf(err, "thread %d", tid))
			}
		}
	}
	if err := errCollection.GetErrIfAny(); err != nil {
		return errors.Wrapf(err, "cannot set affinity of pid %d to %s", taskPid, a.cpus)
	}
	log.Debugf("affinity of pid %d (%d threads) set to %s", taskPid, len(done), a.cpus)
	return nil
}

// CPUs returns the CPUs the isolation places processes on.
func (a Affinity) CPUs() cpuset.CPUSet {
	return a.cpus
}

// Mask converts cpus to the representation sched_setaffinity(2) expects.
func Mask(cpus cpuset.CPUSet) unix.CPUSet {
	var mask unix.CPUSet
	mask.Zero()
	for _, cpu := range cpus.List() {
		mask.Set(cpu)
	}
	return mask
}

// PinCurrentThread restricts the calling OS thread to cpus.
// Callers must hold the thread with runtime.LockOSThread.
func PinCurrentThread(cpus cpuset.CPUSet) error {
	if cpus.IsEmpty() {
		return errors.New("cannot pin thread to an empty CPU set")
	}
	mask := Mask(cpus)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return errors.Wrapf(err, "cannot pin thread to %s", cpus)
	}
	return nil
}
