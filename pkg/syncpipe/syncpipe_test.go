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

package syncpipe

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Signal(ReadyToken))
	require.NoError(t, p.Await(ReadyToken))
}

func TestWrongTokenIsRefused(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Signal(ReadyToken))
	err = p.Await(ReleaseToken)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unexpected rendezvous token")
}

func TestPeerDeathSurfacesAsReadError(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	defer p.Close()

	// Closing the only write end without sending is what a crashed peer
	// looks like.
	p.CloseWrite()
	require.Error(t, p.Await(ReadyToken))
}

func TestCloseIsIdempotent(t *testing.T) {
	p, err := New()
	require.NoError(t, err)
	p.Close()
	p.Close()
}
