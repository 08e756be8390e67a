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

import "github.com/pkg/errors"

var (
	// ErrConfiguration means the requested isolation cannot be expressed on this host:
	// missing boot parameters, empty CPU sets or a cpuset which cannot be written.
	ErrConfiguration = errors.New("invalid isolation configuration")

	// ErrResourceUnavailable means the kernel facility needed for isolation is missing,
	// e.g. no cpuset controller could be mounted.
	ErrResourceUnavailable = errors.New("isolation resource unavailable")
)

// IsConfiguration tells whether err was caused by ErrConfiguration.
func IsConfiguration(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsResourceUnavailable tells whether err was caused by ErrResourceUnavailable.
func IsResourceUnavailable(err error) bool {
	return errors.Is(err, ErrResourceUnavailable)
}
