// Package authorityfake provides a scripted in-memory authority for
// tests, mirroring the real client's contract without any transport.
package authorityfake

import (
	"context"
	"sync"

	"github.com/attendsys/go-auth-client/authority"
)

// FakeAuthority implements the verify and refresh contracts with
// scripted outcomes and call counters. Verify results are consumed in
// order; the last one repeats once the script runs out.
type FakeAuthority struct {
	mu sync.Mutex

	VerifyScript []authority.VerifyResult
	VerifyErr    error

	RefreshPair authority.TokenPair
	RefreshErr  error

	verifyCalls  int
	refreshCalls int
}

// NewFakeAuthority creates a fake that answers Valid until scripted
// otherwise.
func NewFakeAuthority() *FakeAuthority {
	return &FakeAuthority{
		VerifyScript: []authority.VerifyResult{authority.VerifyValid},
	}
}

// Verify pops the next scripted verify result.
func (f *FakeAuthority) Verify(_ context.Context, _, _ string) (authority.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.verifyCalls++
	if f.VerifyErr != nil {
		return "", f.VerifyErr
	}
	result := f.VerifyScript[0]
	if len(f.VerifyScript) > 1 {
		f.VerifyScript = f.VerifyScript[1:]
	}
	return result, nil
}

// Refresh returns the scripted pair or error.
func (f *FakeAuthority) Refresh(_ context.Context, _, _ string) (authority.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshCalls++
	if f.RefreshErr != nil {
		return authority.TokenPair{}, f.RefreshErr
	}
	return f.RefreshPair, nil
}

// VerifyCalls reports how many verify round trips were issued.
func (f *FakeAuthority) VerifyCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.verifyCalls
}

// RefreshCalls reports how many refresh round trips were issued.
func (f *FakeAuthority) RefreshCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}
