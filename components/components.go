// Package components defines ECS components for simulation particles.
package components

// Position represents a particle's world position.
type Position struct {
	X, Y, Z float64
}

// Velocity represents a particle's velocity.
type Velocity struct {
	X, Y, Z float64
}

// Physical holds a particle's physical attributes.
type Physical struct {
	Mass  float64
	Rho   float64 // density
	Nu    float64 // kinematic viscosity
	Type  uint8   // subdomain / material type
	Solid bool    // boundary particle, excluded from advection
}

// Chem holds a particle's chemical state.
// Pop is the discrete stochastic population per species; Q and C are the
// continuous concentration and flux accumulators for the deterministic
// chemistry solved outside this engine.
type Chem struct {
	Pop    []int64
	Q      []float64
	C      []float64
	DataFn []float64 // arbitrary per-particle data functions fed to propensities
}
