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
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RunAndWait executes the command, quoting each argument for the shell, waits at most timeout for it to finish
// and returns its standard output.
// A command which times out is stopped. A non-zero exit code is an error
// carrying the tail of the standard error.
func RunAndWait(executor Executor, timeout time.Duration, argv ...string) (string, error) {
	command := shellquote.Join(argv...)
	handle, err := executor.Execute(command)
	if err != nil {
		return "", err
	}

	if ok := handle.Wait(timeout); !ok {
		if err := handle.Stop(); err != nil {
			log.Warnf("cannot stop %q on %q: %v", command, executor.Name(), err)
		}
		return "", errors.Errorf("timed out after %s waiting for %q on %q", timeout, command, executor.Name())
	}

	exitCode, err := handle.ExitCode()
	if err != nil {
		return "", errors.Wrapf(err, "task %q launched on %q failed, cannot get exit code", command, executor.Name())
	}
	if exitCode != 0 {
		return "", errors.Errorf("task %q launched on %q failed with exit code %d: %s",
			command, executor.Name(), exitCode, strings.TrimSpace(handle.Stderr()))
	}

	log.Debugf("task %q launched on %q has ended successfully", command, executor.Name())
	return handle.Stdout(), nil
}
