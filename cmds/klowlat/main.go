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

package main

import (
	"io"
	"os"
	"regexp"

	"github.com/davidel/klowlat/pkg/conf"
	"github.com/davidel/klowlat/pkg/enforcer"
	"github.com/davidel/klowlat/pkg/executor"
	"github.com/davidel/klowlat/pkg/interrupts"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/davidel/klowlat/pkg/partition"
	"github.com/davidel/klowlat/pkg/utils/errutil"
	"github.com/davidel/klowlat/pkg/workload"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Exit statuses of klowlat itself. The status of the workload is logged,
// never passed through, so it cannot be mistaken for one of these.
const (
	exitWorkloadFailed      = 2
	exitConfiguration       = 3
	exitResourceUnavailable = 4
	exitLaunchFailure       = 5

	reportText  = "text"
	reportTable = "table"

	reportAll    = "all"
	reportLowLat = "lowlat"
)

var (
	setupFlag = conf.NewBoolFlag("setup", "Set up isolation and exit", false)
	runFlag   = conf.NewBoolFlag("run", "Set up isolation, run the command given after -- and report interrupts", false)
	resetFlag = conf.NewBoolFlag("reset", "Tear down isolation and let interrupts run on every CPU", false)

	modeFlag = conf.NewEnumFlag("mode", "Isolation mode",
		enforcer.CgroupMode, enforcer.CgroupMode, enforcer.HotplugMode)
	partitionFlag = conf.NewEnumFlag("partition", "How the low latency CPUs are chosen",
		string(partition.ReserveIO), string(partition.ReserveIO), string(partition.Isolate))
	cpuCountFlag     = conf.NewIntFlag("cpu_count", "Number of CPUs, 0 detects it from sysfs", 0)
	cpusetMountFlag  = conf.NewStringFlag("cpuset_mount", "Where the cpuset controller is mounted when it is not already", "/sys/fs/cgroup/cpuset")
	affinityToolFlag = conf.NewEnumFlag("affinity_tool", "How affinity is set in hotplug mode",
		enforcer.AffinitySyscall, enforcer.AffinitySyscall, enforcer.AffinityTaskset)
	kthreadFlag = conf.NewSliceFlag("kthread", "Extra kernel thread name pattern to move to the housekeeping CPUs (--kthread=ksoftirqd --kthread=kworker)")
	pinFlag     = conf.NewBoolFlag("pin", "Start the workload pinned to the low latency CPUs", true)

	reportFormatFlag = conf.NewEnumFlag("report_format", "Interrupt report format", reportText, reportText, reportTable)
	reportCPUsFlag   = conf.NewEnumFlag("report_cpus", "CPUs shown in the interrupt report", reportAll, reportAll, reportLowLat)

	dumpConfigFlag = conf.NewBoolFlag("dump_config", "Print the configuration as environment variables and exit", false)

	commandArg = conf.NewStringsArg("command", "Workload command line, given after --")
)

func isConfiguration(err error) (int, bool) {
	return exitConfiguration, isolation.IsConfiguration(err)
}

func isResourceUnavailable(err error) (int, bool) {
	return exitResourceUnavailable, isolation.IsResourceUnavailable(err)
}

// check exits when err is set, with the status reserved for its class.
func check(err error, context string) {
	errutil.CheckWithExitCodes(err, context, isConfiguration, isResourceUnavailable)
}

// exitStatus maps the status of the workload to the exit status of klowlat.
func exitStatus(workloadStatus int) int {
	switch workloadStatus {
	case 0:
		return 0
	case workload.LaunchFailure:
		return exitLaunchFailure
	}
	logrus.Warnf("workload exited with status %d", workloadStatus)
	return exitWorkloadFailed
}

func newHost() (enforcer.Host, error) {
	procRoot, sysRoot := conf.ProcRoot.Value(), conf.SysRoot.Value()

	mode, err := partition.ParseMode(partitionFlag.Value())
	if err != nil {
		return enforcer.Host{}, err
	}

	total := cpuCountFlag.Value()
	if total == 0 {
		total, err = partition.Detect(sysRoot)
		if err != nil {
			return enforcer.Host{}, err
		}
	}

	cmdline, err := partition.CmdLine(procRoot)
	if err != nil {
		return enforcer.Host{}, err
	}

	p, err := partition.New(mode, cmdline, total)
	if err != nil {
		return enforcer.Host{}, err
	}
	logrus.Infof("%d CPUs: %s", total, p)

	return enforcer.Host{
		ProcRoot:       procRoot,
		SysRoot:        sysRoot,
		Partition:      p,
		Executor:       executor.NewLocal(),
		CommandTimeout: conf.CommandTimeout.Value(),
	}, nil
}

func kthreadPatterns() ([]*regexp.Regexp, error) {
	patterns := []*regexp.Regexp{}
	for _, expr := range kthreadFlag.Value() {
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrapf(isolation.ErrConfiguration, "invalid kernel thread pattern %q: %v", expr, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}

func newEnforcer(host enforcer.Host) (*enforcer.Enforcer, error) {
	strategy, err := enforcer.NewStrategy(modeFlag.Value(), host, cpusetMountFlag.Value(), affinityToolFlag.Value())
	if err != nil {
		return nil, err
	}
	patterns, err := kthreadPatterns()
	if err != nil {
		return nil, err
	}
	return enforcer.New(host, strategy, patterns)
}

// measure runs the workload between two interrupt snapshots and writes the
// difference to w. It returns the exit status of the workload.
func measure(e *enforcer.Enforcer, host enforcer.Host, argv []string, w io.Writer) (int, error) {
	runner := workload.Runner{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	if pinFlag.Value() {
		runner.CPUs = host.Partition.LowLatency
	}
	if e.Strategy().Name() == enforcer.CgroupMode {
		runner.Isolation = e.Strategy().LowLatency()
	}

	sampler := interrupts.NewSampler(host.ProcRoot)
	before, err := sampler.Snapshot()
	if err != nil {
		return 0, err
	}
	code := runner.Run(argv)
	after, err := sampler.Snapshot()
	if err != nil {
		return code, err
	}

	delta, err := interrupts.Diff(before, after)
	if err != nil {
		return code, err
	}
	if reportCPUsFlag.Value() == reportLowLat {
		delta = delta.Only(host.Partition.LowLatency)
	}
	if reportFormatFlag.Value() == reportTable {
		interrupts.RenderTable(w, delta)
		return code, nil
	}
	return code, interrupts.Render(w, delta)
}

func main() {
	conf.SetAppName("klowlat")
	conf.SetHelp(`Keeps interrupts, kernel threads and ordinary tasks away from a set of low latency CPUs,
runs a workload on them and reports the interrupts they received meanwhile.`)

	if err := conf.ParseFlags(); err != nil {
		check(errors.Wrapf(isolation.ErrConfiguration, "%v", err), "cannot parse flags")
	}
	logrus.SetOutput(os.Stderr)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetLevel(conf.LogLevel())

	if dumpConfigFlag.Value() {
		io.WriteString(os.Stdout, conf.DumpConfig())
		os.Exit(0)
	}

	if !setupFlag.Value() && !runFlag.Value() && !resetFlag.Value() {
		check(errors.Wrap(isolation.ErrConfiguration, "one of --setup, --run or --reset is required"), "nothing to do")
	}
	argv := commandArg.Value()
	if runFlag.Value() && len(argv) == 0 {
		check(errors.Wrap(isolation.ErrConfiguration, "--run needs a command after --"), "nothing to run")
	}

	host, err := newHost()
	check(err, "cannot partition CPUs")

	e, err := newEnforcer(host)
	check(err, "cannot create enforcer")

	if resetFlag.Value() {
		check(e.Teardown(), "cannot tear down isolation")
		logrus.Info("isolation torn down")
		return
	}

	validateOS(host)

	report, err := e.Setup()
	report.Log()
	check(err, "cannot set up isolation")

	if !runFlag.Value() {
		return
	}

	code, err := measure(e, host, argv, os.Stdout)
	check(err, "cannot measure interrupts")
	os.Exit(exitStatus(code))
}
