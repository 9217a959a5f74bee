// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package util

import "fmt"

// Wrapf wraps *err with a "format: %w"-style prefix if *err is non-nil,
// leaving it unchanged otherwise. It is meant for use in a deferred call, so
// a function's named error return gets consistent call-site context without
// every return statement repeating fmt.Errorf:
//
//	func f(x int) (err error) {
//		defer util.Wrapf(&err, "f(%d)", x)
//		...
//	}
func Wrapf(err *error, format string, args ...any) {
	if err == nil || *err == nil {
		return
	}
	*err = fmt.Errorf(format+": %w", append(args, *err)...)
}
