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

	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"
)

func TestErrors(t *testing.T) {
	Convey("Wrapped sentinel errors keep their class", t, func() {
		err := errors.Wrap(ErrConfiguration, "isolcpus missing")
		So(IsConfiguration(err), ShouldBeTrue)
		So(IsResourceUnavailable(err), ShouldBeFalse)

		err = errors.Wrapf(ErrResourceUnavailable, "cannot mount %s", "/cpuset")
		So(IsResourceUnavailable(err), ShouldBeTrue)
		So(errors.Cause(err), ShouldEqual, ErrResourceUnavailable)
	})
}
