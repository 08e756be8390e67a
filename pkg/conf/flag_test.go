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

import (
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestEnvFlag(t *testing.T) {
	Convey("While using Flag struct, it should construct proper environment var name", t, func() {
		So(NewStringFlag("test_name", "", "").envName(), ShouldEqual, "KLOWLAT_TEST_NAME")
		So(SysRoot.envName(), ShouldEqual, "KLOWLAT_SYS_ROOT")
	})
}

func TestFlags(t *testing.T) {
	Convey("While using Conf flags", t, func() {
		Convey("When some custom String Flag is defined", func() {
			customFlag := NewStringFlag("custom_string_arg", "help", "default")
			customFlag.clear()
			defer customFlag.clear()

			Convey("Redefining it with the same default gives the same flag", func() {
				So(NewStringFlag("custom_string_arg", "help", "default"), ShouldEqual, customFlag)
			})

			Convey("Redefining it with another default panics", func() {
				So(func() { NewStringFlag("custom_string_arg", "help", "other") }, ShouldPanic)
				So(func() { NewIntFlag("custom_string_arg", "help", 1) }, ShouldPanic)
			})

			Convey("When we do not define any environment variable we should have default value after parse", func() {
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldEqual, "default")
			})

			Convey("When we define custom environment variable we should have custom value after parse", func() {
				os.Setenv(customFlag.envName(), "customContent")
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldEqual, "customContent")
			})
		})

		Convey("When some custom Int Flag is defined", func() {
			customFlag := NewIntFlag("custom_int_arg", "help", 23424)
			customFlag.clear()
			defer customFlag.clear()

			Convey("Without parse it should be default", func() {
				So(customFlag.Value(), ShouldEqual, 23424)
			})

			Convey("When we define custom environment variable we should have custom value after parse", func() {
				os.Setenv(customFlag.envName(), "12")
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldEqual, 12)
			})
		})

		Convey("When some custom Bool Flag is defined", func() {
			customFlag := NewBoolFlag("custom_bool_arg", "help", false)
			customFlag.clear()
			defer customFlag.clear()

			Convey("Without parse it should be default", func() {
				So(customFlag.Value(), ShouldBeFalse)
			})

			Convey("When we define custom environment variable we should have custom value after parse", func() {
				os.Setenv(customFlag.envName(), "true")
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldBeTrue)
			})
		})

		Convey("When some custom Duration Flag is defined", func() {
			customFlag := NewDurationFlag("custom_duration_arg", "help", 99*time.Millisecond)
			customFlag.clear()
			defer customFlag.clear()

			Convey("Without parse it should be default", func() {
				So(customFlag.Value(), ShouldEqual, 99*time.Millisecond)
			})

			Convey("When we define custom environment variable we should have custom value after parse", func() {
				os.Setenv(customFlag.envName(), (1234 * time.Second).String())
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldEqual, 1234*time.Second)
			})
		})

		Convey("When some custom Enum Flag is defined", func() {
			customFlag := NewEnumFlag("custom_enum_arg", "help", "cgroup", "cgroup", "hotplug")
			customFlag.clear()
			defer customFlag.clear()

			Convey("Without parse it should be default", func() {
				So(customFlag.Value(), ShouldEqual, "cgroup")
			})

			Convey("A known value from the environment is taken", func() {
				os.Setenv(customFlag.envName(), "hotplug")
				So(ParseArgs(nil), ShouldBeNil)
				So(customFlag.Value(), ShouldEqual, "hotplug")
			})

			Convey("An unknown value from the environment is rejected", func() {
				os.Setenv(customFlag.envName(), "bogus")
				So(ParseArgs(nil), ShouldNotBeNil)
			})
		})

		Convey("When some custom Slice Flag is defined", func() {
			customFlag := NewSliceFlag("custom_slice_arg", "help")
			customFlag.clear()
			defer customFlag.clear()

			Convey("Without parse it should be empty", func() {
				So(customFlag.Value(), ShouldBeEmpty)
			})
		})
	})
}

func TestLogLevel(t *testing.T) {
	Convey("While using the log level flag", t, func() {
		logLevelFlag.clear()
		defer logLevelFlag.clear()

		Convey("The default is warn", func() {
			So(ParseArgs(nil), ShouldBeNil)
			So(LogLevel(), ShouldEqual, logrus.WarnLevel)
		})

		Convey("It can be fetched from env", func() {
			os.Setenv(logLevelFlag.envName(), "debug")
			So(ParseArgs(nil), ShouldBeNil)
			So(LogLevel(), ShouldEqual, logrus.DebugLevel)
		})

		Convey("An unknown level falls back to the default", func() {
			os.Setenv(logLevelFlag.envName(), "chatty")
			So(ParseArgs(nil), ShouldBeNil)
			So(LogLevel(), ShouldEqual, logrus.WarnLevel)
		})
	})
}

func TestAppName(t *testing.T) {
	Convey("Name and help can be set", t, func() {
		SetAppName("testAppName")
		SetHelp("test help")
		defer SetAppName("klowlat")

		So(app.Name, ShouldEqual, "testAppName")
		So(app.Help, ShouldEqual, "test help")
	})
}
