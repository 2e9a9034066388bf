package models

import (
	"time"

	"github.com/google/uuid"
)

// FlowEntry is a single firewall rule record inside a matrix snapshot.
// ID is unique within a snapshot; every other field is optional.
// Entries are immutable once they are part of a snapshot.
type FlowEntry struct {
	ID                 int        `json:"id"`
	RequestType        string     `json:"request_type,omitempty"`
	RuleStatus         string     `json:"rule_status,omitempty"`
	RuleName           string     `json:"rule_name,omitempty"`
	Device             string     `json:"device,omitempty"`
	SrcZone            string     `json:"src_zone,omitempty"`
	SrcName            string     `json:"src_name,omitempty"`
	SrcCIDR            string     `json:"src_cidr,omitempty"`
	SrcService         string     `json:"src_service,omitempty"`
	DstZone            string     `json:"dst_zone,omitempty"`
	DstName            string     `json:"dst_name,omitempty"`
	DstCIDR            string     `json:"dst_cidr,omitempty"`
	ProtocolGroup      string     `json:"protocol_group,omitempty"`
	DstService         string     `json:"dst_service,omitempty"`
	Action             string     `json:"action,omitempty"`
	ImplementationDate *time.Time `json:"implementation_date,omitempty"`
	Requester          string     `json:"requester,omitempty"`
	Comment            string     `json:"comment,omitempty"`
}

// Rule actions and statuses used by the impact heuristics.
const (
	ActionAllow = "ALLOW"
	ActionDeny  = "DENY"

	RuleStatusActive = "ACTIVE"
)

// MatrixSnapshot is a complete, immutable capture of all flow entries in a
// matrix at a given version. A nil Entries slice means the snapshot is
// malformed, not empty.
type MatrixSnapshot struct {
	Entries []FlowEntry `json:"entries"`
}

// Matrix is a named flow matrix. Versioned snapshots hang off of it.
type Matrix struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MatrixVersion is one stored snapshot of a matrix. Version numbers are
// assigned sequentially per matrix starting at 1.
type MatrixVersion struct {
	ID        uuid.UUID       `json:"id"`
	MatrixID  uuid.UUID       `json:"matrix_id"`
	Version   int             `json:"version"`
	Snapshot  *MatrixSnapshot `json:"snapshot,omitempty"`
	CreatedBy string          `json:"created_by"`
	CreatedAt time.Time       `json:"created_at"`
}

// VersionedSnapshot pairs a version number with its snapshot, the input
// shape consumed by the version stats aggregator.
type VersionedSnapshot struct {
	Version  int
	Snapshot *MatrixSnapshot
}
