package rxpool

import "github.com/panjf2000/ants/v2"

// Ants returns the underlying ants pool
func (p *WorkerPool) Ants() *ants.Pool {
	if p == nil {
		return nil
	}
	return p.pool
}
