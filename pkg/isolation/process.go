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

// TaskPID is a Linux Process ID.
type TaskPID int64

// ProcessIsolation abstraction gives ability for different implementations
// to place an already running process onto a set of CPUs.
type ProcessIsolation interface {
	// Isolate moves the process onto the CPUs of the isolation.
	Isolate(taskPid TaskPID) error
}

// ProcessIsolationFunc adapts a plain function to ProcessIsolation.
type ProcessIsolationFunc func(taskPid TaskPID) error

// Isolate calls f(taskPid).
func (f ProcessIsolationFunc) Isolate(taskPid TaskPID) error {
	return f(taskPid)
}
