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

package errutil

import (
	"os"

	log "github.com/sirupsen/logrus"
)

// CheckWithContext logs the error with its stack trace at debug level and
// exits with status 1, prefixing the message with context.
func CheckWithContext(err error, context string) {
	if err != nil {
		log.Debugf("%s: %+v", context, err)
		log.Fatalf("%s: %v", context, err)
	}
}

// ExitClassifier maps an error to a dedicated exit status. It returns false
// when the error does not belong to its class.
type ExitClassifier func(err error) (int, bool)

// CheckWithExitCodes works like CheckWithContext, but exits with the status
// of the first classifier which recognizes the error.
func CheckWithExitCodes(err error, context string, classifiers ...ExitClassifier) {
	if err == nil {
		return
	}
	for _, classify := range classifiers {
		if code, ok := classify(err); ok {
			log.Debugf("%s: %+v", context, err)
			log.Errorf("%s: %v", context, err)
			exit(code)
			return
		}
	}
	CheckWithContext(err, context)
}

// exit is replaced in tests.
var exit = os.Exit
