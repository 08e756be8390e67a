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
	"strconv"
	"time"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/executor"
	"github.com/pkg/errors"
	"k8s.io/utils/cpuset"
)

// Taskset places processes by running the taskset(1) utility on all of their threads.
type Taskset struct {
	cpus     cpuset.CPUSet
	executor executor.Executor
	timeout  time.Duration
}

// NewTaskset is a constructor for Taskset.
func NewTaskset(cpus cpuset.CPUSet, executor executor.Executor, timeout time.Duration) Taskset {
	return Taskset{
		cpus:     cpus,
		executor: executor,
		timeout:  timeout,
	}
}

// Isolate implements ProcessIsolation interface.
func (t Taskset) Isolate(taskPid TaskPID) error {
	if t.cpus.IsEmpty() {
		return errors.Errorf("cannot run taskset for pid %d with an empty CPU list", taskPid)
	}
	_, err := executor.RunAndWait(t.executor, t.timeout,
		"taskset", "-a", "-c", cpulist.Format(t.cpus), "-p", strconv.FormatInt(int64(taskPid), 10))
	return err
}
