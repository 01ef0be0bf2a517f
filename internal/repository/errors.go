package repository

import "errors"

var (
	ErrNotFound     = errors.New("repository: not found")
	ErrConflict     = errors.New("repository: conflict")
	ErrInvalidInput = errors.New("repository: invalid input")
)
