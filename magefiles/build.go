// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Package main provides the mage targets of the carsync project.
//
// Usage:
//
//	mage build        Compile carsync to bin/
//	mage install      Install carsync to GOPATH/bin
//	mage serve        Build and serve the HTTP API against .carsync-db
//	mage test:all     Run every test
//	mage test:race    Run every test with the race detector
//	mage test:cover   Write coverage to bin/coverage.out
//	mage vet          Run go vet
//	mage lint         Run go vet and golangci-lint
//	mage stats        Print Go line counts as JSON
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "carsync"
	binaryDir  = "bin"
	cmdDir     = "./cmd/carsync"
	modulePath = "github.com/mesh-intelligence/carsync"
)

// ldflags stamps the git revision into the binary when one is available.
func ldflags() string {
	rev, err := sh.Output("git", "rev-parse", "--short", "HEAD")
	if err != nil || rev == "" {
		return ""
	}
	return "-X " + modulePath + "/internal/cli.revision=" + rev
}

// Build compiles the carsync binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-ldflags", ldflags(), "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts.
func Clean() error {
	if err := os.RemoveAll(binaryDir); err != nil {
		return err
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}

// Serve builds carsync and serves the HTTP API with the local logging
// profile until interrupted.
func Serve() error {
	mg.Deps(Build)
	env := map[string]string{"CARSYNC_ENV": "local"}
	return sh.RunWithV(env, filepath.Join(binaryDir, binaryName), "serve", "--reconcile")
}
