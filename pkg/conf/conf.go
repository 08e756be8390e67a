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
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"
)

// EnvPrefix is prepended to flag names to get their environment variable.
const EnvPrefix = "KLOWLAT"

var (
	app = kingpin.New("klowlat", "No help available")
	// Default flags and values.
	logLevelFlag = NewStringFlag(
		"log",
		"Log level: debug, info, warn, error, fatal, panic",
		"warn",
	)
	isEnvParsed = false
)

// SetHelp sets the help message for the CLI.
func SetHelp(help string) {
	app.Help = help
}

// SetAppName sets application name for CLI output.
func SetAppName(name string) {
	app.Name = name
}

// LogLevel returns configured logLevel from input option or env variable.
// If it cannot parse the log level, it returns default value.
func LogLevel() logrus.Level {
	level, err := logrus.ParseLevel(logLevelFlag.Value())
	if err == nil {
		return level
	}

	level, err = logrus.ParseLevel(logLevelFlag.defaultValue)
	if err == nil {
		return level
	}

	// Programmer error.
	panic(errors.Wrap(err, "parsing log level failed"))
}

// ParseFlags parses both the command line flags of the process and
// environment variables.
func ParseFlags() error {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses the given command line and environment variables.
func ParseArgs(args []string) error {
	if _, err := app.Parse(args); err != nil {
		return errors.Wrap(err, "could not parse command line flags")
	}
	isEnvParsed = true
	return nil
}

// flagDefinition describes a registered flag with its current value.
type flagDefinition struct {
	Name, Value, Default, Help string
}

// getFlagsDefinition returns current, default, keys and description for
// every flag, in registration order which groups related flags.
func getFlagsDefinition() (flags []flagDefinition) {
	for _, name := range flagOrder {
		flag := definedFlags[name]
		model := flag.model()
		flags = append(flags, flagDefinition{
			Name:    model.Name,
			Help:    model.Help,
			Default: strings.Join(model.Default, ","),
			Value:   flag.valueString(),
		})
	}
	return flags
}

// DumpConfig dumps environment based configuration with current values of
// flags. Includes "allexport" directives for bash.
func DumpConfig() string {
	buffer := &bytes.Buffer{}

	buffer.WriteString("# Export all values.\n")
	buffer.WriteString("set -o allexport\n")

	for _, fd := range getFlagsDefinition() {
		fmt.Fprintf(buffer, "\n# %s\n", fd.Help)
		if fd.Default != "" {
			fmt.Fprintf(buffer, "# Default: %s\n", fd.Default)
		}

		fmt.Fprintf(buffer, "%s=%v\n", envName(fd.Name), fd.Value)
	}

	buffer.WriteString("set +o allexport\n")
	return buffer.String()
}
