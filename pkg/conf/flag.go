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
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/alecthomas/kingpin.v2"
)

// flagType is an internal interface for all flags.
type flagType interface {
	model() *kingpin.FlagModel
	valueString() string
	clear()
}

var (
	// definedFlags stores all the defined flags, to find duplicates.
	definedFlags = map[string]flagType{}
	// flagOrder keeps flag names in registration order.
	flagOrder []string
)

func envName(flagName string) string {
	return fmt.Sprintf("%s_%s", EnvPrefix, strings.ToUpper(flagName))
}

// cliAndEnvFlag represents option's definition from CLI and Environment variable.
type cliAndEnvFlag struct {
	*kingpin.FlagClause
}

func newCliAndEnvFlag(flagName string, description string, defaultValue string) *cliAndEnvFlag {
	if definedFlags[flagName] != nil {
		panic(fmt.Sprintf("flag %q was already defined", flagName))
	}

	c := &cliAndEnvFlag{FlagClause: app.Flag(flagName, description)}
	c.OverrideDefaultFromEnvar(c.envName())
	if defaultValue != "" {
		c.Default(defaultValue)
	}
	return c
}

func register(flagName string, flag flagType) {
	definedFlags[flagName] = flag
	flagOrder = append(flagOrder, flagName)
	isEnvParsed = false
}

// lookup returns the flag already registered under flagName, after checking
// that the redefinition agrees with it.
func lookup(flagName string, sameType func(flagType) bool, sameDefault func(flagType) bool) flagType {
	duplicatedFlag := definedFlags[flagName]
	if duplicatedFlag == nil {
		return nil
	}
	if !sameType(duplicatedFlag) {
		panic(fmt.Sprintf("flag %q was redefined with a different type", flagName))
	}
	if !sameDefault(duplicatedFlag) {
		panic(fmt.Sprintf("flag %q was redefined with a different default", flagName))
	}
	return duplicatedFlag
}

// envName returns name converted to environment variable name.
// For instance: "proc_root" will be "KLOWLAT_PROC_ROOT".
func (f *cliAndEnvFlag) envName() string {
	return envName(f.Model().Name)
}

func (f *cliAndEnvFlag) model() *kingpin.FlagModel {
	return f.Model()
}

// clear unsets the corresponding environment variable.
func (f *cliAndEnvFlag) clear() {
	os.Unsetenv(f.envName())
}

// StringFlag represents flag with string value.
type StringFlag struct {
	*cliAndEnvFlag
	defaultValue string
	value        *string
}

// NewStringFlag is a constructor of StringFlag struct.
func NewStringFlag(flagName string, description string, defaultValue string) *StringFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*StringFlag); return ok },
		func(f flagType) bool { return f.(*StringFlag).defaultValue == defaultValue }); f != nil {
		return f.(*StringFlag)
	}

	flagDef := &StringFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.String()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (s StringFlag) Value() string {
	if !isEnvParsed {
		return s.defaultValue
	}
	return *s.value
}

func (s StringFlag) valueString() string {
	return s.Value()
}

// EnumFlag represents flag with a string value out of a fixed set.
type EnumFlag struct {
	*StringFlag
	options []string
}

// NewEnumFlag is a constructor of EnumFlag struct. The default must be one of the options.
func NewEnumFlag(flagName string, description string, defaultValue string, options ...string) *EnumFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*EnumFlag); return ok },
		func(f flagType) bool { return f.(*EnumFlag).defaultValue == defaultValue }); f != nil {
		return f.(*EnumFlag)
	}

	flagDef := &EnumFlag{
		StringFlag: &StringFlag{
			cliAndEnvFlag: newCliAndEnvFlag(flagName,
				fmt.Sprintf("%s (%s)", description, strings.Join(options, ", ")), defaultValue),
			defaultValue: defaultValue,
		},
		options: options,
	}
	flagDef.value = flagDef.Enum(options...)
	register(flagName, flagDef)
	return flagDef
}

// IntFlag represents flag with int value.
type IntFlag struct {
	*cliAndEnvFlag
	defaultValue int
	value        *int
}

// NewIntFlag is a constructor of IntFlag struct.
func NewIntFlag(flagName string, description string, defaultValue int) *IntFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*IntFlag); return ok },
		func(f flagType) bool { return f.(*IntFlag).defaultValue == defaultValue }); f != nil {
		return f.(*IntFlag)
	}

	flagDef := &IntFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, strconv.Itoa(defaultValue)),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Int()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (i IntFlag) Value() int {
	if !isEnvParsed {
		return i.defaultValue
	}
	return *i.value
}

func (i IntFlag) valueString() string {
	return strconv.Itoa(i.Value())
}

// SliceFlag represents flag with slice value.
type SliceFlag struct {
	*cliAndEnvFlag
	defaultValue []string
	value        *[]string
}

// NewSliceFlag is a constructor of SliceFlag struct.
func NewSliceFlag(flagName string, description string, elemsInDefaultSlice ...string) *SliceFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*SliceFlag); return ok },
		func(f flagType) bool {
			return strings.Join(f.(*SliceFlag).defaultValue, ",") == strings.Join(elemsInDefaultSlice, ",")
		}); f != nil {
		return f.(*SliceFlag)
	}

	flagDef := &SliceFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, strings.Join(elemsInDefaultSlice, stringListDelimiter)),
		defaultValue:  elemsInDefaultSlice,
	}
	flagDef.value = StringList(flagDef)
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (s SliceFlag) Value() []string {
	if !isEnvParsed {
		return append([]string{}, s.defaultValue...)
	}
	return *s.value
}

func (s SliceFlag) valueString() string {
	return strings.Join(s.Value(), stringListDelimiter)
}

// BoolFlag represents flag with bool value.
type BoolFlag struct {
	*cliAndEnvFlag
	defaultValue bool
	value        *bool
}

// NewBoolFlag is a constructor of BoolFlag struct.
func NewBoolFlag(flagName string, description string, defaultValue bool) *BoolFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*BoolFlag); return ok },
		func(f flagType) bool { return f.(*BoolFlag).defaultValue == defaultValue }); f != nil {
		return f.(*BoolFlag)
	}

	flagDef := &BoolFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, strconv.FormatBool(defaultValue)),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Bool()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (b BoolFlag) Value() bool {
	if !isEnvParsed {
		return b.defaultValue
	}
	return *b.value
}

func (b BoolFlag) valueString() string {
	return strconv.FormatBool(b.Value())
}

// DurationFlag represents flag with duration value.
type DurationFlag struct {
	*cliAndEnvFlag
	defaultValue time.Duration
	value        *time.Duration
}

// NewDurationFlag is a constructor of DurationFlag struct.
func NewDurationFlag(flagName string, description string, defaultValue time.Duration) *DurationFlag {
	if f := lookup(flagName,
		func(f flagType) bool { _, ok := f.(*DurationFlag); return ok },
		func(f flagType) bool { return f.(*DurationFlag).defaultValue == defaultValue }); f != nil {
		return f.(*DurationFlag)
	}

	flagDef := &DurationFlag{
		cliAndEnvFlag: newCliAndEnvFlag(flagName, description, defaultValue.String()),
		defaultValue:  defaultValue,
	}
	flagDef.value = flagDef.Duration()
	register(flagName, flagDef)
	return flagDef
}

// Value returns value of defined flag after parse.
// NOTE: If conf is not parsed it returns default value (!)
func (d DurationFlag) Value() time.Duration {
	if !isEnvParsed {
		return d.defaultValue
	}
	return *d.value
}

func (d DurationFlag) valueString() string {
	return d.Value().String()
}

// StringsArg collects the positional arguments left after the flags,
// typically a command given after "--".
type StringsArg struct {
	value *[]string
}

// NewStringsArg is a constructor of StringsArg struct.
func NewStringsArg(argName string, description string) *StringsArg {
	return &StringsArg{value: app.Arg(argName, description).Strings()}
}

// Value returns the collected arguments, empty before parsing.
func (a StringsArg) Value() []string {
	if !isEnvParsed || a.value == nil {
		return []string{}
	}
	return *a.value
}
