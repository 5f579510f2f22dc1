package testutil

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FileLineNumber is the location of a test case, formatted as a prefix for test errors.
type FileLineNumber string

func (fln FileLineNumber) String() string {
	return string(fln)
}

// MakeFileLineNumber returns the location of the caller of the function which calls it; test
// files wrap it in a short helper used when building their cases.
func MakeFileLineNumber() FileLineNumber {
	_, fn, ln, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	return FileLineNumber(fmt.Sprintf("%s:%d: ", filepath.Base(fn), ln))
}
