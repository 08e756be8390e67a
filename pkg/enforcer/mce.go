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
	"fmt"
	"io/ioutil"
	"path"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// disableMCEPolling turns off the periodic machine check poll on cpus.
// It returns the CPUs where the poll interval could not be written.
func disableMCEPolling(sysRoot string, cpus cpuset.CPUSet) []int {
	failed := []int{}
	for _, cpu := range cpus.List() {
		file := path.Join(sysRoot, "devices", "system", "machinecheck",
			fmt.Sprintf("machinecheck%d", cpu), "check_interval")
		if err := ioutil.WriteFile(file, []byte("0"), 0644); err != nil {
			log.Debugf("cannot disable machine check polling on CPU %d: %v", cpu, err)
			failed = append(failed, cpu)
		}
	}
	return failed
}
