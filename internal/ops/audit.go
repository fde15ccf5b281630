package ops

import "github.com/hpungsan/handoff/internal/record"

// AuditLogInput contains parameters for the AuditLog operation.
type AuditLogInput struct {
	Limit int // default: 50, max: 500; most recent entries are returned
}

// AuditLogOutput contains the result of the AuditLog operation.
type AuditLogOutput struct {
	Items []record.Audit `json:"items"` // oldest first
	Total int            `json:"total"`
}

// AuditLog returns the tail of the store audit log.
func AuditLog(env *Env, input AuditLogInput) (*AuditLogOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	limit = min(limit, MaxAuditLimit)

	all := env.Store.Audits()
	items := all[max(len(all)-limit, 0):]
	if items == nil {
		items = []record.Audit{}
	}
	return &AuditLogOutput{Items: items, Total: len(all)}, nil
}
