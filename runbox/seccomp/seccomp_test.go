// Copyright 2021 The runbox Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package seccomp

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := `
# baseline
read
write

exit_group  # always needed
read
brk
`
	names, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"read", "write", "exit_group", "brk"}, names)
}

func TestParseEmpty(t *testing.T) {
	names, err := Parse(strings.NewReader("# nothing but comments\n\n"))
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestParseRejectsMalformedLines(t *testing.T) {
	_, err := Parse(strings.NewReader("read write\n"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "malformed whitelist line")
}
