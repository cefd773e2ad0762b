package contract

import (
	"errors"

	prospectx "github.com/tanpawarit/account-opening-agents/agent/prospect"
)

var (
	ErrUnknownFunction = errors.New("unknown function")
	ErrArgumentParse   = errors.New("function arguments could not be parsed")
	ErrStepExecution   = errors.New("step execution failed")
	ErrRecordNotFound  = prospectx.ErrRecordNotFound
	ErrCollaborator    = errors.New("collaborator call failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrPromptMissing   = errors.New("required prompt is missing")
	ErrValidation      = errors.New("validation failed")
	ErrTurnLimit       = errors.New("executor turn limit reached")
)
