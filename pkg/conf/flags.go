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

package conf

import "time"

// Flags shared by every component touching kernel interfaces.
var (
	// ProcRoot is where procfs is mounted.
	ProcRoot = NewStringFlag("proc_root", "Mount point of procfs", "/proc")

	// SysRoot is where sysfs is mounted.
	SysRoot = NewStringFlag("sys_root", "Mount point of sysfs", "/sys")

	// CommandTimeout bounds the run time of external utilities such as mount and taskset.
	CommandTimeout = NewDurationFlag("command_timeout", "Timeout for external utilities", 10*time.Second)
)
