package models

import "time"

// Template kinds. Informational only: per-level IsParallel is authoritative.
const (
	TemplateKindSequential = "sequential"
	TemplateKindParallel   = "parallel"
)

// ApprovalTemplate is a named, ordered approval chain. Once referenced by a
// workflow instance it is never hard-deleted, only deactivated.
type ApprovalTemplate struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	Kind      string           `json:"kind"`
	CreatedBy string           `json:"created_by"`
	IsActive  bool             `json:"is_active"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	Levels    []*TemplateLevel `json:"levels"`
}

// TemplateLevel is one stage of an approval template, bound to a role.
// A sequential level completes on one qualifying approval; a parallel level
// requires approvals from all currently active holders of Role.
type TemplateLevel struct {
	ID          int64  `json:"id"`
	TemplateID  int64  `json:"template_id"`
	LevelNumber int    `json:"level_number"`
	Role        string `json:"role"`
	IsParallel  bool   `json:"is_parallel"`
}

// MaxLevel returns the highest level number in the template
func (t *ApprovalTemplate) MaxLevel() int {
	max := 0
	for _, l := range t.Levels {
		if l.LevelNumber > max {
			max = l.LevelNumber
		}
	}
	return max
}

// Level returns the level with the given number, or nil
func (t *ApprovalTemplate) Level(n int) *TemplateLevel {
	for _, l := range t.Levels {
		if l.LevelNumber == n {
			return l
		}
	}
	return nil
}
