package app

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/GreenHouse007/world-builder-sub000/internal/history"
	"github.com/GreenHouse007/world-builder-sub000/internal/lock"
	"github.com/GreenHouse007/world-builder-sub000/internal/rbac"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

var (
	errWorldNotFound      = domainError(http.StatusNotFound, "WORLD_NOT_FOUND", "World not found", nil)
	errPageNotFound       = domainError(http.StatusNotFound, "PAGE_NOT_FOUND", "Page not found", nil)
	errMemberNotFound     = domainError(http.StatusNotFound, "MEMBER_NOT_FOUND", "Member not found", nil)
	errInvitationNotFound = domainError(http.StatusNotFound, "INVITATION_NOT_FOUND", "Invitation not found", nil)
	errRevisionNotFound   = domainError(http.StatusNotFound, "REVISION_NOT_FOUND", "Revision not found", nil)
	errForbidden          = domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	errParentNotFound     = domainError(http.StatusBadRequest, "PARENT_NOT_FOUND", "Parent page not found in this world", nil)
	errSelfParent         = domainError(http.StatusBadRequest, "SELF_PARENT", "A page cannot be its own parent", nil)
	errCycle              = domainError(http.StatusBadRequest, "CYCLE_DETECTED", "A page cannot be moved under its own descendant", nil)
	errInvalidTitle       = domainError(http.StatusBadRequest, "INVALID_TITLE", "Title must not be empty", nil)
	errInvalidName        = domainError(http.StatusBadRequest, "INVALID_NAME", "Name must not be empty", nil)
	errInvalidBody        = domainError(http.StatusBadRequest, "INVALID_BODY", "Request body is invalid", nil)
	errMissingDoc         = domainError(http.StatusBadRequest, "MISSING_DOC", "doc is required", nil)
	errInvalidRole        = domainError(http.StatusBadRequest, "INVALID_ROLE", "Role is not allowed here", nil)
	errInvalidEmail       = domainError(http.StatusBadRequest, "INVALID_EMAIL", "A valid email is required", nil)
	errOwnerImmutable     = domainError(http.StatusBadRequest, "OWNER_IMMUTABLE", "The world owner cannot be removed or demoted", nil)
	errInviteExists       = domainError(http.StatusConflict, "INVITE_EXISTS", "A pending invitation already exists for this email", nil)
	errAlreadyMember      = domainError(http.StatusConflict, "ALREADY_MEMBER", "This user is already a member", nil)
	errInviteClosed       = domainError(http.StatusConflict, "INVITATION_CLOSED", "Invitation was already answered", nil)
	errWorldBusy          = domainError(http.StatusServiceUnavailable, "WORLD_BUSY", "Another change to this world is in progress, retry shortly", nil)
	errExportUnavailable  = domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not available on this server", nil)
	errUnsupportedFormat  = domainError(http.StatusBadRequest, "UNSUPPORTED_FORMAT", "Unsupported export format", nil)
)

// translate turns collaborator sentinels into domain errors. Anything it
// does not recognize passes through unchanged.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rbac.ErrWorldNotFound):
		return errWorldNotFound
	case errors.Is(err, rbac.ErrPageNotFound):
		return errPageNotFound
	case errors.Is(err, rbac.ErrForbidden):
		return errForbidden
	case errors.Is(err, lock.ErrLockTimeout):
		return errWorldBusy
	case errors.Is(err, history.ErrRevisionNotFound):
		return errRevisionNotFound
	default:
		return err
	}
}
