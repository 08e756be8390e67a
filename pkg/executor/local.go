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

package executor

import (
	"bytes"
	"os/exec"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Local provisioning is responsible for providing the execution environment
// on local machine via exec.Command.
// It runs command as current user.
type Local struct{}

// NewLocal returns a Local instance.
func NewLocal() Local {
	return Local{}
}

// Name returns user-friendly name of executor.
func (l Local) Name() string {
	return "Local"
}

// Execute runs the command given as input.
// Returned TaskHandle is able to stop & monitor the provisioned process.
func (l Local) Execute(command string) (TaskHandle, error) {
	log.Debug("Starting ", command)

	cmd := exec.Command("sh", "-c", command)
	// Separate process group lets Stop signal the command together with its children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "cannot start %q", command)
	}

	log.Debug("Started with pid ", cmd.Process.Pid)

	t := &localTaskHandle{
		cmd:     cmd,
		command: command,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
	}
	go t.wait()

	return t, nil
}

// localTaskHandle implements TaskHandle interface.
type localTaskHandle struct {
	cmd      *exec.Cmd
	command  string
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
	done     chan struct{}
	exitCode int
}

func (t *localTaskHandle) wait() {
	// Wait() error is ignored, the process state below carries everything we need.
	t.cmd.Wait()

	status := t.cmd.ProcessState.Sys().(syscall.WaitStatus)
	if status.Exited() {
		t.exitCode = status.ExitStatus()
	} else {
		// Negative code tells which signal caused the termination.
		t.exitCode = -int(status.Signal())
	}

	log.Debugf("Ended %q with status code %d", t.command, t.exitCode)
	close(t.done)
}

func (t *localTaskHandle) terminated() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Stop terminates the whole process group of the task.
func (t *localTaskHandle) Stop() error {
	if t.terminated() {
		return nil
	}

	// The kill syscall interprets a negated PID N as the process group N belongs to.
	log.Debug("Sending SIGTERM to PID ", -t.cmd.Process.Pid)
	if err := syscall.Kill(-t.cmd.Process.Pid, syscall.SIGTERM); err != nil {
		return errors.Wrapf(err, "cannot stop %q", t.command)
	}

	<-t.done
	return nil
}

func (t *localTaskHandle) Status() TaskState {
	if t.terminated() {
		return TERMINATED
	}
	return RUNNING
}

func (t *localTaskHandle) ExitCode() (int, error) {
	if !t.terminated() {
		return -1, errors.Errorf("task %q is not terminated", t.command)
	}
	return t.exitCode, nil
}

func (t *localTaskHandle) Stdout() string {
	if !t.terminated() {
		return ""
	}
	return t.stdout.String()
}

func (t *localTaskHandle) Stderr() string {
	if !t.terminated() {
		return ""
	}
	return t.stderr.String()
}

// Wait blocks until process is terminated or timeout appeared.
// Returns true when process terminates before timeout, otherwise false.
func (t *localTaskHandle) Wait(timeout time.Duration) bool {
	if timeout == 0 {
		<-t.done
		return true
	}

	select {
	case <-t.done:
		return true
	case <-time.After(timeout):
		return false
	}
}
