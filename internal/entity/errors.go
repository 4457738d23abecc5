package entity

import "errors"

var (
	ErrNotFound         = errors.New("record not found")
	ErrIdentityConflict = errors.New("identity already linked to another lead")
	ErrAlreadyMerged    = errors.New("lead already merged")
	ErrUnknownReference = errors.New("referenced record does not exist")
)
