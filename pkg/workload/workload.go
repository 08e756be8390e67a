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

// Package workload launches the command to run on the isolated CPUs.
package workload

import (
	"io"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// LaunchFailure is returned when the workload cannot be started. It lies
// outside the 0-255 range of real exit statuses.
const LaunchFailure = -1

// signalExitBase is added to the signal number of a workload killed by a signal.
const signalExitBase = 128

// Runner starts a workload and waits for it.
type Runner struct {
	// CPUs restricts the affinity the workload starts with. Empty means no restriction.
	CPUs cpuset.CPUSet
	// Isolation, when set, receives the workload right after it started.
	Isolation isolation.ProcessIsolation

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run starts argv and blocks until it ends. It returns the exit status of
// the workload, 128+N when it was killed by signal N, or
// LaunchFailure when it could not be started.
func (r Runner) Run(argv []string) int {
	if len(argv) == 0 {
		log.Error("no workload command given")
		return LaunchFailure
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr

	if err := r.start(cmd); err != nil {
		log.Errorf("cannot start workload %q: %v", argv[0], err)
		return LaunchFailure
	}
	log.Infof("workload %q started with pid %d", argv[0], cmd.Process.Pid)

	if r.Isolation != nil {
		if err := r.Isolation.Isolate(isolation.TaskPID(cmd.Process.Pid)); err != nil {
			log.Warnf("cannot isolate workload pid %d: %v", cmd.Process.Pid, err)
		}
	}

	err := cmd.Wait()
	code := exitStatus(cmd, err)
	log.Infof("workload %q ended with status %d", argv[0], code)
	return code
}

// start forks the workload from an OS thread pinned to the runner's CPUs,
// so the workload inherits that affinity from its very first instruction.
func (r Runner) start(cmd *exec.Cmd) error {
	if r.CPUs.IsEmpty() {
		return cmd.Start()
	}

	errc := make(chan error, 1)
	go func() {
		// The thread is never unlocked, so the runtime discards it together
		// with its modified affinity when this goroutine returns.
		runtime.LockOSThread()
		if err := isolation.PinCurrentThread(r.CPUs); err != nil {
			log.Warnf("starting workload without CPU restriction: %v", err)
		} else {
			log.Debugf("starting workload on CPUs %s", cpulist.Format(r.CPUs))
		}
		errc <- cmd.Start()
	}()
	return <-errc
}

func exitStatus(cmd *exec.Cmd, err error) int {
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			log.Warnf("workload ended with error: %v", err)
		}
	}
	if cmd.ProcessState == nil {
		return LaunchFailure
	}
	status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
	if !ok {
		return cmd.ProcessState.ExitCode()
	}
	if status.Signaled() {
		return signalExitBase + int(status.Signal())
	}
	return status.ExitStatus()
}
