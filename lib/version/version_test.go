// Copyright 2026 The Boxline Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	got := Info()
	if !strings.Contains(got, Version) || !strings.Contains(got, GitCommit) {
		t.Errorf("Info() = %q, want it to carry version and commit", got)
	}
}

func TestFull(t *testing.T) {
	got := Full()
	if !strings.Contains(got, Info()) {
		t.Errorf("Full() = %q, want it to contain Info()", got)
	}
	if !strings.Contains(got, runtime.Version()) {
		t.Errorf("Full() = %q, want it to carry the Go version", got)
	}
	if !strings.Contains(got, runtime.GOOS+"/"+runtime.GOARCH) {
		t.Errorf("Full() = %q, want it to carry the platform", got)
	}
}
