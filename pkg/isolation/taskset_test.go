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
	"testing"
	"time"

	"github.com/davidel/klowlat/pkg/executor/mocks"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
	"k8s.io/utils/cpuset"
)

func TestTaskset(t *testing.T) {
	Convey("When placing a process with taskset", t, func() {
		mExecutor := new(mocks.Executor)
		mHandle := new(mocks.TaskHandle)
		mExecutor.On("Name").Return("Mock")

		taskset := NewTaskset(cpuset.New(0, 1, 2, 7), mExecutor, time.Second)

		Convey("The CPU list and the pid are passed to taskset", func() {
			mExecutor.On("Execute", "taskset -a -c 0-2,7 -p 1234").Return(mHandle, nil)
			mHandle.On("Wait", time.Second).Return(true)
			mHandle.On("ExitCode").Return(0, nil)
			mHandle.On("Stdout").Return("")

			So(taskset.Isolate(1234), ShouldBeNil)
			So(mExecutor.AssertExpectations(t), ShouldBeTrue)
		})

		Convey("A failing taskset is reported", func() {
			mExecutor.On("Execute", "taskset -a -c 0-2,7 -p 1234").Return(nil, errors.New("no shell"))

			So(taskset.Isolate(1234), ShouldNotBeNil)
		})
	})

	Convey("Taskset with an empty CPU list fails without running anything", t, func() {
		mExecutor := new(mocks.Executor)
		taskset := NewTaskset(cpuset.New(), mExecutor, time.Second)

		So(taskset.Isolate(1), ShouldNotBeNil)
		So(mExecutor.AssertNotCalled(t, "Execute", "taskset -a -c  -p 1"), ShouldBeTrue)
	})
}
