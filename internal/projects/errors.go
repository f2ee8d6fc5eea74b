package projects

import "errors"

var (
	// ErrProjectNotFound is returned when a project does not exist for the user
	ErrProjectNotFound = errors.New("project not found")

	ErrMissingUser        = errors.New("user id is required")
	ErrMissingTitle       = errors.New("project title and description are required")
	ErrInvalidTarget      = errors.New("a valid deployment target is required")
	ErrInvalidLevel       = errors.New("a valid optimization level is required")
	ErrMissingConsent     = errors.New("data consent is required")
	ErrInvalidCriterion   = errors.New("criterion must be regression or classification")
	ErrInvalidStatus      = errors.New("invalid project status")
	ErrUnsupportedFile    = errors.New("file type not allowed")
	ErrFileTooLarge       = errors.New("file exceeds size limit")
	ErrEmptyFile          = errors.New("file is empty")
	ErrUnknownFileKind    = errors.New("unknown file kind")
	ErrStorageUnavailable = errors.New("file storage not configured")
)

// IsValidation reports whether err is caused by bad client input.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrMissingUser, ErrMissingTitle, ErrInvalidTarget, ErrInvalidLevel,
		ErrMissingConsent, ErrInvalidCriterion, ErrInvalidStatus,
		ErrUnsupportedFile, ErrFileTooLarge, ErrEmptyFile, ErrUnknownFileKind,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
