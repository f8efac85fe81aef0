package service

import (
	"context"
	"errors"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/pkg/xerr"
)

// toCodeError maps domain errors onto response codes; the cause stays in the chain
func toCodeError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := xerr.From(err); ok {
		return err
	}
	switch {
	case errors.Is(err, conversation.ErrEmptyQuery):
		return xerr.Wrap(xerr.BadRequest, "query is empty", err)
	case errors.Is(err, conversation.ErrAccessDenied):
		return xerr.Wrap(xerr.Forbidden, "session belongs to another user", err)
	case errors.Is(err, conversation.ErrSessionNotFound):
		return xerr.Wrap(xerr.NotFound, "session not found", err)
	case errors.Is(err, conversation.ErrSessionClosed):
		return xerr.Wrap(xerr.Conflict, "session is closed", err)
	case errors.Is(err, conversation.ErrStoreUnavailable):
		return xerr.Wrap(xerr.ServiceUnavailable, "conversation store unavailable, retry later", err)
	case errors.Is(err, intent.ErrAllHandlersFailed):
		return xerr.Wrap(xerr.ServiceUnavailable, "no handler could answer, retry later", err)
	case errors.Is(err, context.DeadlineExceeded):
		return xerr.Wrap(xerr.ServiceUnavailable, "request timed out", err)
	}
	return xerr.Wrap(xerr.InternalServerError, xerr.ErrServerError.Message, err)
}
