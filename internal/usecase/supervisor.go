package usecase

import "hydra/internal/domain"

// Supervisor returns the model acting as the system's supervisor: the one
// marked is_supervisor, else the first model with neither knowledge bases
// nor tools. candidates counts every model that qualifies under the rule
// that selected it; more than one means the choice was ambiguous.
func Supervisor(models []domain.ModelSpec) (sup *domain.ModelSpec, candidates int) {
	for i := range models {
		if models[i].IsSupervisor {
			if sup == nil {
				sup = &models[i]
			}
			candidates++
		}
	}
	if sup != nil {
		return sup, candidates
	}
	for i := range models {
		if len(models[i].KnowledgeBases) == 0 && len(models[i].Tools) == 0 {
			if sup == nil {
				sup = &models[i]
			}
			candidates++
		}
	}
	return sup, candidates
}
