// File: cmd/graphedit/main_test.go
package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlePanic(t *testing.T) {
	defer func() {
		osExit = os.Exit
		osWriteFile = os.WriteFile
	}()

	var (
		code    int
		written []byte
		path    string
	)
	osExit = func(c int) { code = c }
	osWriteFile = func(name string, data []byte, _ os.FileMode) error {
		path, written = name, data
		return nil
	}

	func() {
		defer handlePanic()
		panic("boom")
	}()

	assert.Equal(t, 2, code)
	assert.Equal(t, panicLogFile, path)
	assert.Contains(t, string(written), "panic: boom")
	assert.Contains(t, string(written), "goroutine")
}

func TestHandlePanicWithoutPanic(t *testing.T) {
	defer func() { osExit = os.Exit }()
	called := false
	osExit = func(int) { called = true }

	func() {
		defer handlePanic()
	}()
	assert.False(t, called)
}
