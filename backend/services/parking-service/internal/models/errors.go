package models

import "errors"

var (
	ErrCardNotFound    = errors.New("card not found")
	ErrSessionNotFound = errors.New("session not found")
)

var (
	ErrCardLost             = errors.New("card is flagged lost")
	ErrAlreadyBound         = errors.New("card is already bound")
	ErrDuplicateOpenSession = errors.New("card already has an open session")
	ErrAlreadyClosed        = errors.New("session is already closed")
	ErrCardExists           = errors.New("card code or barcode already registered")
)

var (
	ErrRateTableNotFound = errors.New("no rate table for vehicle class")
	ErrCacheMiss         = errors.New("not cached")
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrOperatorExists   = errors.New("operator login already registered")
)
