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

package cgroup

import (
	"os"
	"strings"
	"time"

	"github.com/davidel/klowlat/pkg/executor"
	"github.com/davidel/klowlat/pkg/isolation"
	"github.com/pkg/errors"
	"github.com/prometheus/procfs"
	log "github.com/sirupsen/logrus"
)

const (
	// CPUSetController is the canonical name of the cgroups cpuset controller.
	CPUSetController = "cpuset"

	// DefaultCommandTimeout is the default amount of time to wait for
	// dispatched commands to finish executing.
	DefaultCommandTimeout = 10 * time.Second
)

// Mount is one entry of the mount table.
type Mount struct {
	Device     string
	MountPoint string
	FSType     string
	Options    map[string]string
}

// HasCPUSet returns true if the mount exposes the cpuset controller, either as
// a cgroup v1 hierarchy with the cpuset controller or as the legacy cpuset filesystem.
func (m Mount) HasCPUSet() bool {
	if m.FSType == CPUSetController {
		return true
	}
	if m.FSType != "cgroup" {
		return false
	}
	_, found := m.Options[CPUSetController]
	return found
}

// Legacy returns true for the cpuset filesystem, whose attribute files lack
// the "cpuset." prefix.
func (m Mount) Legacy() bool {
	if m.FSType == CPUSetController {
		return true
	}
	_, noprefix := m.Options["noprefix"]
	return noprefix
}

// Mounts reads the mount table of the current process and remembers the
// first cpuset capable mount it finds.
type Mounts struct {
	procRoot string
	cpuset   *Mount
}

// NewMounts returns Mounts reading from procfs mounted at procRoot.
func NewMounts(procRoot string) *Mounts {
	return &Mounts{procRoot: procRoot}
}

// Read returns the current mount table.
func (m *Mounts) Read() ([]Mount, error) {
	fs, err := procfs.NewFS(m.procRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open procfs at %q", m.procRoot)
	}
	self, err := fs.Self()
	if err != nil {
		return nil, errors.Wrap(err, "cannot find own process in procfs")
	}
	infos, err := self.MountInfo()
	if err != nil {
		return nil, errors.Wrap(err, "cannot read mountinfo")
	}

	mounts := make([]Mount, 0, len(infos))
	for _, info := range infos {
		options := make(map[string]string, len(info.Options)+len(info.SuperOptions))
		for k, v := range info.Options {
			options[k] = v
		}
		// Controllers show up among the superblock options.
		for k, v := range info.SuperOptions {
			options[k] = v
		}
		mounts = append(mounts, Mount{
			Device:     info.Source,
			MountPoint: info.MountPoint,
			FSType:     info.FSType,
			Options:    options,
		})
	}
	return mounts, nil
}

// CPUSet returns a cpuset capable mount. Once found, the mount is cached for the
// lifetime of Mounts. The boolean is false when no such mount exists.
func (m *Mounts) CPUSet() (Mount, bool, error) {
	if m.cpuset != nil {
		return *m.cpuset, true, nil
	}
	mounts, err := m.Read()
	if err != nil {
		return Mount{}, false, err
	}
	for _, mount := range mounts {
		if mount.HasCPUSet() {
			found := mount
			m.cpuset = &found
			log.Debugf("cpuset controller found at %s (%s)", mount.MountPoint, mount.FSType)
			return found, true, nil
		}
	}
	return Mount{}, false, nil
}

// EnsureCPUSet returns a cpuset capable mount, mounting the cpuset controller at
// mountPoint when there is none yet.
func EnsureCPUSet(mounts *Mounts, mountPoint string, exec executor.Executor, timeout time.Duration) (Mount, error) {
	mount, found, err := mounts.CPUSet()
	if err != nil {
		return Mount{}, err
	}
	if found {
		return mount, nil
	}

	log.Infof("no cpuset controller mounted, mounting it at %s", mountPoint)
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return Mount{}, errors.Wrapf(isolation.ErrConfiguration, "cannot create mount point %q: %v", mountPoint, err)
	}
	if _, err := executor.RunAndWait(exec, timeout,
		"mount", "-t", "cgroup", "-o", CPUSetController, CPUSetController, mountPoint); err != nil {
		log.Warnf("cannot mount cpuset controller: %v", err)
	}

	mount, found, err = mounts.CPUSet()
	if err != nil {
		return Mount{}, err
	}
	if !found {
		return Mount{}, errors.Wrapf(isolation.ErrResourceUnavailable,
			"cpuset controller is not mounted (mount point %s)", strings.TrimSpace(mountPoint))
	}
	return mount, nil
}
