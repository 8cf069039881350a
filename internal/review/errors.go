package review

import "github.com/rotisserie/eris"

var (
	// ErrUnknownField rejects an action on a field outside the job's schema.
	ErrUnknownField = eris.New("review: unknown field")

	// ErrInvalidAction rejects any action other than accept, edit or clear.
	ErrInvalidAction = eris.New("review: invalid action")

	// ErrReviewIncomplete blocks export while any field is unreviewed.
	ErrReviewIncomplete = eris.New("review: not all fields reviewed")

	// ErrUnsavedChanges blocks export while the caller's edit buffer
	// diverges from the durable working state.
	ErrUnsavedChanges = eris.New("review: unsaved changes pending")
)
