package identitygate

import "go.uber.org/fx"

// Module wires the Identity Gate for Fx-based composition, grounded on the
// teacher's per-package fx.Module convention (registry.Module, service.Module).
// The concrete TokenVerifier and UserLookup are supplied by the composition
// root (cmd), since the verifier needs config-sourced secret material.
var Module = fx.Module("identitygate",
	fx.Provide(NewGate),
)
