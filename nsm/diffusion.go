package nsm

import "github.com/pthm-cable/brine/particle"

// buildDiffusionOperator derives each voxel's per-species diffusion rate
// diagonal from the current neighbor lists and the subdomain rate matrices:
// ddiag[s] = sum over neighbors j of D_i_j * rate(s, sd_i, sd_j). It then
// resets sdrate to ddiag . pop. This is the dominant per-step cost on moving
// domains.
func (r *RDME) buildDiffusionOperator() error {
	if !r.sys.IndexBuilt() {
		return particle.ErrIndexStale
	}
	for i := range r.voxels {
		vox := &r.voxels[i]
		for s := range vox.ddiag {
			vox.ddiag[s] = 0
		}
		for _, e := range r.sys.Neighbors(i) {
			sdJ := r.voxels[e.To].sd
			for s := range vox.ddiag {
				vox.ddiag[s] += e.D * r.mdl.DiffusionRate(s, vox.sd, sdJ)
			}
		}
		sum := 0.0
		for s, d := range vox.ddiag {
			sum += d * float64(vox.chem.Pop[s])
		}
		vox.sdrate = sum
	}
	return nil
}

// RebuildDiffusion refreshes the diffusion operator after the neighbor lists
// changed (every step on a moving domain) and redraws every voxel's next
// event time, since all total propensities may have shifted.
func (r *RDME) RebuildDiffusion() error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if err := r.buildDiffusionOperator(); err != nil {
		return err
	}
	for i := range r.voxels {
		r.reschedule(i, r.tNow)
	}
	return nil
}
