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

package partition

import (
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/davidel/klowlat/pkg/cpulist"
	"github.com/davidel/klowlat/pkg/isolation"
	. "github.com/smartystreets/goconvey/convey"
)

func checkInvariant(p Partition) {
	So(p.LowLatency.Intersection(p.Housekeeping).IsEmpty(), ShouldBeTrue)
	So(p.LowLatency.Union(p.Housekeeping).Equals(cpulist.All(p.Total)), ShouldBeTrue)
}

func TestNew(t *testing.T) {
	Convey("When partitioning in io mode", t, func() {
		Convey("Without the boot parameter the lowest tenth is for housekeeping", func() {
			p, err := New(ReserveIO, []string{"ro", "quiet"}, 47)
			So(err, ShouldBeNil)
			So(cpulist.Format(p.Housekeeping), ShouldEqual, "0-4")
			So(cpulist.Format(p.LowLatency), ShouldEqual, "5-46")
			checkInvariant(p)
		})

		Convey("The boot parameter names the housekeeping CPUs", func() {
			p, err := New(ReserveIO, []string{"ro", "klowlat.iocpus=0,2"}, 8)
			So(err, ShouldBeNil)
			So(cpulist.Format(p.Housekeeping), ShouldEqual, "0,2")
			So(cpulist.Format(p.LowLatency), ShouldEqual, "1,3-7")
			checkInvariant(p)
		})

		Convey("CPUs beyond the host are dropped", func() {
			p, err := New(ReserveIO, []string{"klowlat.iocpus=0-1,12"}, 8)
			So(err, ShouldBeNil)
			So(cpulist.Format(p.Housekeeping), ShouldEqual, "0-1")
			checkInvariant(p)
		})

		Convey("Housekeeping on every CPU leaves nothing to isolate", func() {
			_, err := New(ReserveIO, []string{"klowlat.iocpus=0-7"}, 8)
			So(isolation.IsConfiguration(err), ShouldBeTrue)
		})

		Convey("A single CPU host cannot be partitioned", func() {
			_, err := New(ReserveIO, nil, 1)
			So(isolation.IsResourceUnavailable(err), ShouldBeTrue)
			So(isolation.IsConfiguration(err), ShouldBeFalse)

			_, err = New(Isolate, []string{"isolcpus=0"}, 1)
			So(isolation.IsResourceUnavailable(err), ShouldBeTrue)
		})
	})

	Convey("When partitioning in isolation mode", t, func() {
		Convey("isolcpus names the low latency CPUs", func() {
			p, err := New(Isolate, []string{"isolcpus=2-5"}, 8)
			So(err, ShouldBeNil)
			So(cpulist.Format(p.LowLatency), ShouldEqual, "2-5")
			So(cpulist.Format(p.Housekeeping), ShouldEqual, "0-1,6-7")
			checkInvariant(p)
		})

		Convey("isolcpus flags are skipped", func() {
			p, err := New(Isolate, []string{"isolcpus=nohz,domain,2-5"}, 8)
			So(err, ShouldBeNil)
			So(cpulist.Format(p.LowLatency), ShouldEqual, "2-5")
		})

		Convey("Missing isolcpus is a configuration error", func() {
			_, err := New(Isolate, []string{"ro"}, 8)
			So(err, ShouldNotBeNil)
			So(isolation.IsConfiguration(err), ShouldBeTrue)
		})

		Convey("isolcpus outside of the host is a configuration error", func() {
			_, err := New(Isolate, []string{"isolcpus=16-31"}, 8)
			So(isolation.IsConfiguration(err), ShouldBeTrue)
		})
	})

	Convey("Invalid CPU counts and modes are rejected", t, func() {
		_, err := New(ReserveIO, nil, 0)
		So(isolation.IsConfiguration(err), ShouldBeTrue)
		_, err = New(Mode("bogus"), nil, 8)
		So(isolation.IsConfiguration(err), ShouldBeTrue)
	})

	Convey("Every count gives a valid io partition", t, func() {
		for total := 2; total <= 128; total++ {
			p, err := New(ReserveIO, nil, total)
			So(err, ShouldBeNil)
			So(p.Housekeeping.Size(), ShouldEqual, (total+9)/10)
			checkInvariant(p)
		}
	})
}

func TestParseMode(t *testing.T) {
	Convey("Known modes parse", t, func() {
		m, err := ParseMode("io")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, ReserveIO)
		m, err = ParseMode("isolation")
		So(err, ShouldBeNil)
		So(m, ShouldEqual, Isolate)
	})
	Convey("Unknown modes do not", t, func() {
		_, err := ParseMode("hotplug")
		So(isolation.IsConfiguration(err), ShouldBeTrue)
	})
}

func TestBootParam(t *testing.T) {
	Convey("When looking up boot parameters", t, func() {
		cmdline := []string{"BOOT_IMAGE=/vmlinuz", "isolcpus=1", "quiet", "isolcpus=2-3"}

		Convey("The last occurrence wins", func() {
			value, found := BootParam(cmdline, "isolcpus")
			So(found, ShouldBeTrue)
			So(value, ShouldEqual, "2-3")
		})

		Convey("Flags without value are found with an empty value", func() {
			value, found := BootParam(cmdline, "quiet")
			So(found, ShouldBeTrue)
			So(value, ShouldEqual, "")
		})

		Convey("Keys are matched exactly", func() {
			_, found := BootParam(cmdline, "isol")
			So(found, ShouldBeFalse)
		})
	})
}

func TestDetectAndCmdLine(t *testing.T) {
	Convey("When reading the host", t, func() {
		root, err := ioutil.TempDir("", "host")
		So(err, ShouldBeNil)
		defer os.RemoveAll(root)

		Convey("CPUs are counted from sysfs, including offline ones", func() {
			sysRoot := path.Join(root, "sys")
			for i := 0; i < 6; i++ {
				cpuDir := path.Join(sysRoot, "devices", "system", "cpu", fmt.Sprintf("cpu%d", i))
				So(os.MkdirAll(cpuDir, 0755), ShouldBeNil)
			}
			So(os.MkdirAll(path.Join(sysRoot, "devices", "system", "cpu", "cpufreq"), 0755), ShouldBeNil)
			So(ioutil.WriteFile(path.Join(sysRoot, "devices", "system", "cpu", "cpu5", "online"), []byte("0\n"), 0644), ShouldBeNil)

			n, err := Detect(sysRoot)
			So(err, ShouldBeNil)
			So(n, ShouldEqual, 6)
		})

		Convey("A sysfs without CPUs is an error", func() {
			_, err := Detect(root)
			So(err, ShouldNotBeNil)
		})

		Convey("The boot command line is split into arguments", func() {
			So(ioutil.WriteFile(path.Join(root, "cmdline"), []byte("ro quiet isolcpus=2-3\n"), 0644), ShouldBeNil)
			cmdline, err := CmdLine(root)
			So(err, ShouldBeNil)
			So(cmdline, ShouldResemble, []string{"ro", "quiet", "isolcpus=2-3"})
		})
	})
}
