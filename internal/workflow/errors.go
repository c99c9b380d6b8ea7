package workflow

import "errors"

// Business errors returned by the engine. Handlers map these onto HTTP
// status codes; anything else is treated as an internal failure.
var (
	ErrPolicyNotFound   = errors.New("policy not found")
	ErrInstanceNotFound = errors.New("workflow instance not found")
	ErrTemplateNotFound = errors.New("approval template not found")

	// ErrMissingValidatedStructure means the policy has no content that passed
	// structure validation, so it cannot enter approval.
	ErrMissingValidatedStructure = errors.New("policy has no validated structure")

	// ErrInvalidPolicyState means the policy is not in a submittable state.
	ErrInvalidPolicyState = errors.New("policy is not in a submittable state")

	// ErrPolicyLocked means another approval run already holds the edit lock.
	ErrPolicyLocked = errors.New("policy is locked by an approval in progress")

	ErrEmptyTemplate = errors.New("approval template has no levels")

	// ErrWorkflowNotActive means the instance already reached a terminal state.
	ErrWorkflowNotActive = errors.New("workflow instance is not in progress")

	ErrSelfApprovalForbidden = errors.New("submitter cannot approve their own submission")
	ErrUnauthorizedApprover  = errors.New("user does not hold the role required at this level")
)
