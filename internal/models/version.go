package models

import (
	"encoding/json"
	"time"
)

// PolicyVersion ties a version number to a snapshot reference and approval
// metadata. Locking is monotone: once locked a version is never unlocked and
// its snapshot may only be read.
type PolicyVersion struct {
	ID            int64      `json:"id"`
	PolicyID      int64      `json:"policy_id"`
	VersionNumber int        `json:"version_number"`
	SnapshotID    *int64     `json:"snapshot_id,omitempty"`
	ChangeSummary string     `json:"change_summary"`
	CreatedBy     string     `json:"created_by"`
	IsLocked      bool       `json:"is_locked"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	ApprovedBy    string     `json:"approved_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// PolicyDocument holds structured policy content, either the single live
// document per policy or an immutable snapshot copy. The content itself is
// opaque to the workflow engine.
type PolicyDocument struct {
	ID         int64           `json:"id"`
	PolicyID   int64           `json:"policy_id"`
	Version    int             `json:"version"`
	IsSnapshot bool            `json:"is_snapshot"`
	Structure  json.RawMessage `json:"structure"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
