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

package version

import (
	"strings"
	"testing"
)

func TestWithCommit(t *testing.T) {
	tests := []struct {
		commit, date string
		want         string
	}{
		{"", "", WithMeta},
		{"abc", "", WithMeta},
		{"0123456789abcdef", "", WithMeta + "-01234567"},
		{"0123456789abcdef", "20250101", WithMeta + "-01234567-20250101"},
	}
	for i, tt := range tests {
		if have := WithCommit(tt.commit, tt.date); have != tt.want {
			t.Errorf("test %d: have %q, want %q", i, have, tt.want)
		}
	}
}

func TestInfo(t *testing.T) {
	info := Info("ensis")
	if !strings.HasPrefix(info, "ensis\n") {
		t.Fatalf("unexpected header: %q", info)
	}
	if !strings.Contains(info, "Version: "+WithMeta) {
		t.Fatalf("missing version line: %q", info)
	}
}
