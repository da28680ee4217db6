//go:build !linux && !darwin

package discovery

import (
	"context"
	"errors"
)

// PluginProvider is unavailable on platforms without support for the
// stdlib plugin package. Construct a StaticProvider instead.
type PluginProvider struct{}

// NewPluginProvider always returns a provider whose methods report the
// platform is unsupported.
func NewPluginProvider(roots []string, exclude []string, tmpDir string) *PluginProvider {
	return &PluginProvider{}
}

var errUnsupported = errors.New("discovery: dynamic plugin loading is not supported on this platform")

func (p *PluginProvider) ListTests(ctx context.Context) (Result, error) {
	return Result{}, errUnsupported
}

func (p *PluginProvider) Reload(ctx context.Context) error {
	return errUnsupported
}

func (p *PluginProvider) Case(qualifiedName string) (CaseFunc, bool) {
	return nil, false
}
