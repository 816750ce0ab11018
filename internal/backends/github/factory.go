package github

import (
	"github.com/chronicle-labs/chronicler/internal/core/ports/driven"
	"github.com/chronicle-labs/chronicler/internal/core/services"
)

// Factory builds a GitHub backend for the registry.
func Factory(setup services.BackendSetup) (driven.Backend, error) {
	return New(setup.Origin, setup.Client)
}
