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

// Package cpulist converts between the kernel CPU list notation
// ("0-3,5,7-8") and cpuset.CPUSet.
package cpulist

import (
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/cpuset"
)

// MaxCPU is the highest CPU id Parse accepts.
// Larger ids are treated as malformed tokens.
const MaxCPU = 1 << 16

// Parse reads a comma separated list of CPU ids and inclusive ranges.
// Malformed tokens are skipped, so the kernel's flag words in front of a list
// (e.g. "nohz,domain,2-5") do not make the whole list unusable.
func Parse(spec string) cpuset.CPUSet {
	var ids []int
	for _, token := range strings.Split(strings.TrimSpace(spec), ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		low, high, ok := parseToken(token)
		if !ok {
			log.Debugf("cpulist: skipping malformed token %q in %q", token, spec)
			continue
		}
		for id := low; id <= high; id++ {
			ids = append(ids, id)
		}
	}
	return cpuset.New(ids...)
}

func parseToken(token string) (low, high int, ok bool) {
	bounds := strings.SplitN(token, "-", 2)
	low, err := parseID(bounds[0])
	if err != nil {
		return 0, 0, false
	}
	if len(bounds) == 1 {
		return low, low, true
	}
	high, err = parseID(bounds[1])
	if err != nil || high < low {
		return 0, 0, false
	}
	return low, high, true
}

func parseID(s string) (int, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	if id > MaxCPU {
		return 0, strconv.ErrRange
	}
	return int(id), nil
}

// Format renders cpus in ascending order, merging consecutive ids into
// "base-last" ranges. An empty set renders as "".
func Format(cpus cpuset.CPUSet) string {
	var parts []string
	ids := cpus.List()
	for i := 0; i < len(ids); {
		j := i
		for j+1 < len(ids) && ids[j+1] == ids[j]+1 {
			j++
		}
		if i == j {
			parts = append(parts, strconv.Itoa(ids[i]))
		} else {
			parts = append(parts, strconv.Itoa(ids[i])+"-"+strconv.Itoa(ids[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// All returns the set [0,n).
func All(n int) cpuset.CPUSet {
	var ids []int
	for id := 0; id < n; id++ {
		ids = append(ids, id)
	}
	return cpuset.New(ids...)
}

// Below returns the set of ids in cpus which are lower than n, together with
// the ones which were dropped.
func Below(cpus cpuset.CPUSet, n int) (kept, dropped cpuset.CPUSet) {
	all := All(n)
	return cpus.Intersection(all), cpus.Difference(all)
}
