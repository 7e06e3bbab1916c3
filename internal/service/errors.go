package service

import "errors"

var (
	// ErrInvalidAssignee means a create carried neither a resolvable
	// tag nor a known delivery id.
	ErrInvalidAssignee = errors.New("no resolvable assignee")

	// ErrEmptyTag means no member carries the requested tag.
	ErrEmptyTag = errors.New("no members carry tag")

	// ErrNotFoundOrCompleted deliberately collapses "no such task" and
	// "already completed" so callers cannot probe for other people's
	// task ids.
	ErrNotFoundOrCompleted = errors.New("task not found or already completed")
)
