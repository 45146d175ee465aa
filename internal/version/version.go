// Copyright 2022 The go-ethereum Authors
// Copyright 2025 The ensis Authors
// This file is part of the ensis library.
//
// The ensis library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ensis library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ensis library. If not, see <http://www.gnu.org/licenses/>.

// Package version implements reading of build version information.
package version

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/ensis-project/ensis/version"
)

const ourPath = "github.com/ensis-project/ensis" // Path to our module

// Family holds the textual version string for major.minor
var Family = fmt.Sprintf("%d.%d", version.Major, version.Minor)

// Semantic holds the textual version string for major.minor.patch.
var Semantic = fmt.Sprintf("%d.%d.%d", version.Major, version.Minor, version.Patch)

// WithMeta holds the textual version string including the metadata.
var WithMeta = func() string {
	v := Semantic
	if version.Meta != "" {
		v += "-" + version.Meta
	}
	return v
}()

// WithCommit returns the version string including the commit hash and date.
func WithCommit(gitCommit, gitDate string) string {
	vsn := WithMeta
	if len(gitCommit) >= 8 {
		vsn += "-" + gitCommit[:8]
	}
	if (version.Meta != "stable") && (gitDate != "") {
		vsn += "-" + gitDate
	}
	return vsn
}

// Info returns the multi-line version report printed by `ensis version`.
func Info(name string) string {
	var b strings.Builder
	fmt.Fprintln(&b, name)
	fmt.Fprintln(&b, "Version:", WithMeta)
	if git, ok := VCS(); ok {
		fmt.Fprintln(&b, "Git Commit:", git.Commit)
		fmt.Fprintln(&b, "Git Commit Date:", git.Date)
		if git.Dirty {
			fmt.Fprintln(&b, "Git Tree: dirty")
		}
	}
	fmt.Fprintln(&b, "Architecture:", runtime.GOARCH)
	fmt.Fprintln(&b, "Go Version:", runtime.Version())
	fmt.Fprintln(&b, "Operating System:", runtime.GOOS)
	return b.String()
}
