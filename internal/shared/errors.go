// Package shared holds sentinel errors crossing service boundaries
package shared

import "errors"

var (
	ErrPolicyNotFound    = errors.New("policy not found")
	ErrPolicyExists      = errors.New("policy already exists")
	ErrOperationNotFound = errors.New("operation not found")
)
