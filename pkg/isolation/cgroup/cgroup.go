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
	pth "path"
	"sort"
	"strconv"
	"strings"

	"github.com/davidel/klowlat/pkg/isolation"
	libcgroups "github.com/opencontainers/runc/libcontainer/cgroups"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ProcsFile lists the processes of a cgroup. Writing a pid moves the whole process.
const ProcsFile = "cgroup.procs"

// Cgroup represents a Linux control group in a cgroup v1 hierarchy.
// See https://www.kernel.org/doc/Documentation/cgroup-v1/cgroups.txt
//
// The cgroup is driven directly through its virtual file system, with the
// control files opened by libcontainer.
type Cgroup interface {
	isolation.ProcessIsolation

	// Path returns this cgroup's path in the hierarchy.
	Path() string

	// IsRoot returns true if this cgroup is the root of the hierarchy.
	IsRoot() bool

	// Parent returns the direct ancestor of this cgroup, or nil if this
	// is the root.
	Parent() Cgroup

	// Ancestors returns all ancestors of this cgroup, in depth order
	// beginning with the root of the hierarchy. The result does not
	// contain this cgroup.
	Ancestors() []Cgroup

	// AbsPath returns the absolute path to this cgroup's directory.
	AbsPath() string

	// Exists returns true iff this cgroup's directory is present.
	Exists() (bool, error)

	// Create makes this cgroup's directory. Creating an existing cgroup is not an error.
	Create() error

	// Destroy removes this cgroup. The cgroup must not have any processes or children.
	Destroy() error

	// Tasks returns the pids of the processes in this cgroup.
	//
	// NB: Linux pid range is [0,  2^22]; see /proc/sys/kernel/pid_max.
	Tasks() (isolation.IntSet, error)

	// Get returns the value of an attribute for this Cgroup.
	Get(name string) (string, error)

	// Set overwrites the value of an attribute for this Cgroup.
	Set(name string, value string) error

	// SetAndCheck overwrites the value of an attribute for this Cgroup and
	// returns an error if a subsequent read of the same attribute does
	// not exactly match the written value.
	SetAndCheck(name string, value string) error
}

// ByPathLength implements sort.Interface for []Cgroup.
// We define a partial order on Cgroups based on path length.
// For a slice of Cgroups in an ancestry chain this yields a topological
// sort beginning with the root of the Cgroup hierarchy.
type ByPathLength []Cgroup

// Len returns the length of the Cgroup slice.
func (b ByPathLength) Len() int {
	return len(b)
}

// Swap swaps two elements in the Cgroup slice.
func (b ByPathLength) Swap(i int, j int) {
	b[i], b[j] = b[j], b[i]
}

// Less returns true if the Cgroup at index i has a shorter path
// than the Cgroup at index j.
func (b ByPathLength) Less(i, j int) bool {
	return len(b[i].Path()) < len(b[j].Path())
}

// NewCgroup returns a new Cgroup at path within the hierarchy mounted at mount.
// Returns an error if the path is empty or the mount has no cpuset controller.
func NewCgroup(mount Mount, path string) (Cgroup, error) {
	if path == "" {
		return nil, errors.New("empty path specified for cgroup")
	}
	if !mount.HasCPUSet() {
		return nil, errors.Errorf("mount %q does not provide the cpuset controller", mount.MountPoint)
	}
	canonicalPath := pth.Join("/", path)
	return &cgroup{mount, canonicalPath}, nil
}

// The cgroup struct implements the Cgroup interface.
type cgroup struct {
	mount Mount
	path  string
}

func (cg *cgroup) Path() string {
	return cg.path
}

func (cg *cgroup) IsRoot() bool {
	return cg.path == "/"
}

func (cg *cgroup) AbsPath() string {
	return pth.Join(cg.mount.MountPoint, cg.path)
}

func (cg *cgroup) Parent() Cgroup {
	if cg.IsRoot() {
		return nil
	}
	return &cgroup{cg.mount, pth.Dir(cg.path)}
}

func (cg *cgroup) Ancestors() []Cgroup {
	result := []Cgroup{}
	if cg.IsRoot() {
		return result
	}
	current := cg.Parent()
	for {
		result = append(result, current)
		if current.IsRoot() {
			break
		}
		current = current.Parent()
	}
	// Sort the slice in topological order starting with the root.
	sort.Sort(ByPathLength(result))
	return result
}

func (cg *cgroup) Exists() (bool, error) {
	info, err := os.Stat(cg.AbsPath())
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "cannot stat cgroup %q", cg.path)
	}
	return info.IsDir(), nil
}

func (cg *cgroup) Create() error {
	if err := os.Mkdir(cg.AbsPath(), 0755); err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "cannot create cgroup %q", cg.path)
	}
	return nil
}

func (cg *cgroup) Destroy() error {
	if cg.IsRoot() {
		return errors.New("cannot destroy the root cgroup")
	}
	// Cgroup directories hold only virtual files, so rmdir is the way to remove one.
	if err := os.Remove(cg.AbsPath()); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "cannot destroy cgroup %q", cg.path)
	}
	return nil
}

func (cg *cgroup) Tasks() (isolation.IntSet, error) {
	content, err := libcgroups.ReadFile(cg.AbsPath(), ProcsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read processes of cgroup %q", cg.path)
	}
	return isolation.NewIntSetFromFields(content)
}

// attrFile maps the canonical attribute name to its file, dropping the
// controller prefix on legacy mounts.
func (cg *cgroup) attrFile(name string) string {
	if cg.mount.Legacy() {
		return strings.TrimPrefix(name, CPUSetController+".")
	}
	return name
}

func (cg *cgroup) Get(name string) (string, error) {
	content, err := libcgroups.ReadFile(cg.AbsPath(), cg.attrFile(name))
	if err != nil {
		return "", errors.Wrapf(err, "cannot read %s of cgroup %q", name, cg.path)
	}
	return strings.TrimSpace(content), nil
}

func (cg *cgroup) Set(name string, value string) error {
	if err := libcgroups.WriteFile(cg.AbsPath(), cg.attrFile(name), value); err != nil {
		return errors.Wrapf(err, "cannot write %s=%s to cgroup %q", name, value, cg.path)
	}
	log.Debugf("cgroup %q: %s=%s", cg.path, name, value)
	return nil
}

func (cg *cgroup) SetAndCheck(name string, value string) error {
	err := cg.Set(name, value)
	if err != nil {
		return err
	}
	result, err := cg.Get(name)
	if err != nil {
		return err
	}
	if result != value {
		return errors.Errorf("failed to set attribute '%s' to '%s' in cgroup '%s' (value is %s)", name, value, cg.path, result)
	}
	return nil
}

// Isolate moves the process with the given pid into this cgroup.
func (cg *cgroup) Isolate(taskPid isolation.TaskPID) error {
	return cg.Set(ProcsFile, strconv.FormatInt(int64(taskPid), 10))
}
