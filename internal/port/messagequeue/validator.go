package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects only need to be valid
// JSON.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch subject {
	case SubjectRunCompleted:
		var p RunCompletedPayload
		return decodeRequired(subject, data, &p, p.requiredOK)
	case SubjectRunFailed:
		var p RunFailedPayload
		return decodeRequired(subject, data, &p, p.requiredOK)
	case SubjectIdentityViolation:
		var p IdentityViolationPayload
		return decodeRequired(subject, data, &p, p.requiredOK)
	case SubjectApprovalResolve:
		var p ApprovalResolvePayload
		return decodeRequired(subject, data, &p, p.requiredOK)
	default:
		return nil
	}
}

func decodeRequired(subject string, data []byte, target any, ok func() error) error {
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	if err := ok(); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}

func (p *RunCompletedPayload) requiredOK() error {
	if p.RunID == "" || p.TenantID == "" {
		return errors.New("run_id and tenant_id are required")
	}
	return nil
}

func (p *RunFailedPayload) requiredOK() error {
	if p.RunID == "" || p.TenantID == "" {
		return errors.New("run_id and tenant_id are required")
	}
	return nil
}

func (p *IdentityViolationPayload) requiredOK() error {
	if p.IdentityID == "" {
		return errors.New("identity_id is required")
	}
	return nil
}

func (p *ApprovalResolvePayload) requiredOK() error {
	if p.TenantID == "" || p.ApprovalID == "" || p.ReviewerID == "" {
		return errors.New("tenant_id, approval_id and reviewer_id are required")
	}
	return nil
}
