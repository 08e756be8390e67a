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
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"testing"

	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/davidel/klowlat/pkg/partition"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeStrategy records every placement.
type fakeStrategy struct {
	prepareErr   error
	prepared     bool
	tornDown     bool
	housekeeping []int
	lowLatency   []int
	refuse       map[int]bool
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Prepare() error {
	f.prepared = true
	return f.prepareErr
}

func (f *fakeStrategy) Housekeeping() isolation.ProcessIsolation {
	return isolation.ProcessIsolationFunc(func(pid isolation.TaskPID) error {
		if f.refuse[int(pid)] {
			return errors.New("invalid argument")
		}
		f.housekeeping = append(f.housekeeping, int(pid))
		return nil
	})
}

func (f *fakeStrategy) LowLatency() isolation.ProcessIsolation {
	return isolation.ProcessIsolationFunc(func(pid isolation.TaskPID) error {
		f.lowLatency = append(f.lowLatency, int(pid))
		return nil
	})
}

func (f *fakeStrategy) Teardown() error {
	f.tornDown = true
	return nil
}

func writeFile(name string, content string) {
	So(os.MkdirAll(path.Dir(name), 0755), ShouldBeNil)
	So(ioutil.WriteFile(name, []byte(content), 0644), ShouldBeNil)
}

func readFile(name string) string {
	content, err := ioutil.ReadFile(name)
	So(err, ShouldBeNil)
	return string(content)
}

func newFakeTask(procRoot string, pid int, comm string, cmdline string) {
	dir := path.Join(procRoot, strconv.Itoa(pid))
	writeFile(path.Join(dir, "comm"), comm+"\n")
	writeFile(path.Join(dir, "cmdline"), cmdline)
}

// newFakeHost builds proc and sys trees of an 8 CPU host isolating CPUs 2-7.
func newFakeHost() Host {
	root, err := ioutil.TempDir("", "host")
	So(err, ShouldBeNil)
	procRoot := path.Join(root, "proc")
	sysRoot := path.Join(root, "sys")

	newFakeTask(procRoot, 1, "systemd", "/sbin/init\x00")
	newFakeTask(procRoot, 2, "kthreadd", "")
	newFakeTask(procRoot, 10, "rcuop/3", "")
	newFakeTask(procRoot, 11, "ksoftirqd/3", "")
	newFakeTask(procRoot, 12, "kworker/3:1", "")
	newFakeTask(procRoot, 300, "sshd", "sshd\x00")
	newFakeTask(procRoot, 301, "bash", "-bash\x00")
	newFakeTask(procRoot, os.Getpid(), "klowlat", "klowlat\x00--run\x00")
	// A user process pretending to be an RCU thread stays a user process.
	newFakeTask(procRoot, 302, "rcuop/9", "./rcuop\x00")

	for _, n := range []int{0, 1, 9} {
		writeFile(path.Join(procRoot, "irq", strconv.Itoa(n), "smp_affinity_list"), "0-7\n")
	}
	writeFile(path.Join(procRoot, "irq", "default_smp_affinity"), "ff\n")

	for cpu := 0; cpu < 8; cpu++ {
		writeFile(path.Join(sysRoot, "devices", "system", "cpu", fmt.Sprintf("cpu%d", cpu), "online"), "1\n")
	}
	for cpu := 2; cpu < 6; cpu++ {
		writeFile(path.Join(sysRoot, "devices", "system", "machinecheck",
			fmt.Sprintf("machinecheck%d", cpu), "check_interval"), "300\n")
	}

	p, err := partition.New(partition.Isolate, []string{"isolcpus=2-7"}, 8)
	So(err, ShouldBeNil)
	return Host{ProcRoot: procRoot, SysRoot: sysRoot, Partition: p}
}

func cleanup(host Host) {
	os.RemoveAll(path.Dir(host.ProcRoot))
}

func TestEnforcer(t *testing.T) {
	Convey("When setting up isolation", t, func() {
		host := newFakeHost()
		defer cleanup(host)
		strategy := &fakeStrategy{refuse: map[int]bool{301: true}}

		e, err := New(host, strategy, []*regexp.Regexp{regexp.MustCompile(`^ksoftirqd/`)})
		So(err, ShouldBeNil)
		So(e.Strategy(), ShouldEqual, strategy)

		report, err := e.Setup()
		So(err, ShouldBeNil)
		So(strategy.prepared, ShouldBeTrue)

		Convey("User tasks except ourselves go to housekeeping", func() {
			So(strategy.housekeeping, ShouldContain, 1)
			So(strategy.housekeeping, ShouldContain, 300)
			So(strategy.housekeeping, ShouldNotContain, os.Getpid())
			So(report.UserMoved, ShouldEqual, 3)
			So(report.UserFailed, ShouldResemble, []int{301})
		})

		Convey("RCU and requested kernel threads go to housekeeping", func() {
			So(strategy.housekeeping, ShouldContain, 10)
			So(strategy.housekeeping, ShouldContain, 11)
			So(strategy.housekeeping, ShouldNotContain, 2)
			So(strategy.housekeeping, ShouldNotContain, 12)
			So(report.KernelMoved, ShouldEqual, 2)
			So(report.KernelFailed, ShouldBeEmpty)

			sorted := append([]int(nil), strategy.housekeeping...)
			sort.Ints(sorted)
			So(sorted, ShouldResemble, []int{1, 10, 11, 300, 302})
		})

		Convey("Nothing is placed on the low-latency CPUs", func() {
			So(strategy.lowLatency, ShouldBeEmpty)
		})

		Convey("Interrupts go to housekeeping", func() {
			So(report.IRQs.Moved, ShouldResemble, []int{0, 1, 9})
			So(readFile(path.Join(host.ProcRoot, "irq", "9", "smp_affinity_list")), ShouldEqual, "0-1")
			So(report.DefaultAffinity, ShouldBeNil)
			So(readFile(path.Join(host.ProcRoot, "irq", "default_smp_affinity")), ShouldEqual, "00000003")
		})

		Convey("Machine check polling is disabled where possible", func() {
			So(readFile(path.Join(host.SysRoot, "devices", "system", "machinecheck", "machinecheck2", "check_interval")), ShouldEqual, "0")
			So(report.MCEFailed, ShouldResemble, []int{6, 7})
			report.Log()
		})

		Convey("Teardown restores interrupts to every CPU", func() {
			So(e.Teardown(), ShouldBeNil)
			So(strategy.tornDown, ShouldBeTrue)
			So(readFile(path.Join(host.ProcRoot, "irq", "0", "smp_affinity_list")), ShouldEqual, "0-7")
			So(readFile(path.Join(host.ProcRoot, "irq", "default_smp_affinity")), ShouldEqual, "000000ff")
		})
	})

	Convey("When the strategy cannot be prepared", t, func() {
		host := newFakeHost()
		defer cleanup(host)
		strategy := &fakeStrategy{prepareErr: errors.Wrap(isolation.ErrResourceUnavailable, "no cpuset")}

		e, err := New(host, strategy, nil)
		So(err, ShouldBeNil)
		_, err = e.Setup()

		Convey("Setup fails keeping the error class and nothing is moved", func() {
			So(isolation.IsResourceUnavailable(err), ShouldBeTrue)
			So(strategy.housekeeping, ShouldBeEmpty)
			So(readFile(path.Join(host.ProcRoot, "irq", "0", "smp_affinity_list")), ShouldEqual, "0-7\n")
		})
	})
}
