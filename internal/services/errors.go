// Package services defines the business logic for groups, messages, read
// markers, and uploads. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import "errors"

// Group-related errors.
var (
	// ErrGroupNotFound indicates that the requested group does not exist.
	ErrGroupNotFound = errors.New("group not found")

	// ErrEmptyGroupName is returned when a group is created or renamed with a
	// blank name.
	ErrEmptyGroupName = errors.New("group name is empty")

	// ErrNotMember is returned when the caller is not on the group's member list.
	ErrNotMember = errors.New("not a member of this group")

	// ErrForbidden is returned when a non-manager tries to edit or delete a group.
	ErrForbidden = errors.New("only the group manager may do this")
)

// Message-related errors.
var (
	// ErrMessageNotFound indicates that the requested message does not exist
	// or does not belong to the group.
	ErrMessageNotFound = errors.New("message not found")

	// ErrLastReadMissing is returned when the caller's read marker points at a
	// message that no longer resolves.
	ErrLastReadMissing = errors.New("last read message no longer exists")

	// ErrEmptyMessage is returned when a message body is blank.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the configured rune limit.
	ErrTooLong = errors.New("message too long")

	// ErrInvalidWindow is returned for negative window counts.
	ErrInvalidWindow = errors.New("window counts must be non-negative")

	// ErrEmptyQuery is returned when a search query has no content.
	ErrEmptyQuery = errors.New("search query is empty")
)

// Upload-related errors.
var (
	// ErrInvalidUpload is returned for a bad upload id, chunk index, chunk
	// count, or file name.
	ErrInvalidUpload = errors.New("invalid upload request")

	// ErrChunkTooLarge is returned when a chunk exceeds the configured size.
	ErrChunkTooLarge = errors.New("upload chunk too large")

	// ErrUploadIncomplete is returned when completing an upload with chunks missing.
	ErrUploadIncomplete = errors.New("upload is missing chunks")

	// ErrStorageUnavailable is returned when no object store is configured.
	ErrStorageUnavailable = errors.New("object storage is not configured")
)
