package particle

import (
	"fmt"
	"math"
)

// wfdNorm is the 3D normalization constant of the quintic kernel factor used
// in the diffusion coefficient (Eq. 13-14, Drawert et al. 2019).
const wfdNorm = -25.066903536973515383

// regularization added to r^2 in the diffusion coefficient denominator to
// avoid blow-up as r -> 0, as a fraction of h^2.
const regularizationFactor = 0.01

// KernelDeriv returns the derivative dW/dr of the cubic smoothing kernel with
// compact support h, 3D normalization.
func KernelDeriv(r, h float64) float64 {
	alpha := 105.0 / (16.0 * math.Pi * h * h * h)
	q := 1.0 - r/h
	return alpha * (-12.0 * r / (h * h)) * q * q
}

// kernelFactor returns the wfd weighting used by the diffusion coefficient.
func kernelFactor(r, h float64) float64 {
	ih := 1.0 / h
	ihSq := ih * ih
	dhr := h - r
	return wfdNorm * dhr * dhr * ihSq * ihSq * ihSq * ih
}

// DiffusionCoeff returns the directional diffusion coefficient D_i_j between
// an ordered particle pair at squared distance r2 (Eq. 28, Drawert et al.
// 2019; Tartakovsky et al. 2007). Directional because the masses and
// densities of the two ends enter asymmetrically through their harmonic and
// arithmetic means.
func DiffusionCoeff(r2, h, massI, massJ, rhoI, rhoJ float64) float64 {
	r := math.Sqrt(r2)
	wfd := kernelFactor(r, h)
	return -2.0 * (massI * massJ / (massI + massJ)) *
		((rhoI + rhoJ) / (rhoI * rhoJ)) *
		r2 * wfd / (r2 + regularizationFactor*h*h)
}

// CoefficientError reports a non-finite diffusion coefficient. This is fatal:
// a corrupt D_i_j silently poisons every downstream propensity, so the run
// must abort with full context instead of continuing.
type CoefficientError struct {
	ID           int
	NeighborID   int
	R            float64
	H            float64
	Mass         float64
	Rho          float64
	NeighborMass float64
	NeighborRho  float64
}

func (e *CoefficientError) Error() string {
	return fmt.Sprintf(
		"non-finite diffusion coefficient for particle=%d neighbor=%d: r=%e h=%e mass=%e rho=%e n.mass=%e n.rho=%e",
		e.ID, e.NeighborID, e.R, e.H, e.Mass, e.Rho, e.NeighborMass, e.NeighborRho)
}
