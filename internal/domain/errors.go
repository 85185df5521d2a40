package domain

import "errors"

var (
	ErrProductNotFound = errors.New("product not found")
	ErrProductExists   = errors.New("product already exists")
	ErrObjectNotFound  = errors.New("object not found")
	ErrEmptyBody       = errors.New("object has no body")
	ErrInvalidRecord   = errors.New("invalid event record")
	ErrInvalidRow      = errors.New("invalid product row")
	ErrMissingConfig   = errors.New("missing required configuration")
)
