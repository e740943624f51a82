package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against the typed errors below.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrDataAccess      = errors.New("data access error")
	ErrStorageProvider = errors.New("storage provider error")
)

// ConfigurationError reports missing or invalid invocation parameters.
// It is raised before any connection is attempted.
type ConfigurationError struct {
	Fields []string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: missing required parameters: %s", strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("configuration error: %s: %s", e.Reason, strings.Join(e.Fields, ", "))
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// DataAccessError wraps a failed query or insert against the relational database.
type DataAccessError struct {
	Op  string
	Err error
}

func (e *DataAccessError) Error() string {
	return fmt.Sprintf("data access: %s: %v", e.Op, e.Err)
}

func (e *DataAccessError) Unwrap() error {
	return e.Err
}

func (e *DataAccessError) Is(target error) bool {
	return target == ErrDataAccess
}

// StorageProviderError wraps a failed object listing call.
// Prefix is empty for a whole-bucket scan; Code holds the provider error code if known.
type StorageProviderError struct {
	Op     string
	Bucket string
	Prefix string
	Code   string
	Err    error
}

func (e *StorageProviderError) Error() string {
	target := e.Bucket
	if e.Prefix != "" {
		target = e.Bucket + "/" + e.Prefix
	}
	if e.Code != "" {
		return fmt.Sprintf("s3.%s %s (%s): %v", e.Op, target, e.Code, e.Err)
	}
	return fmt.Sprintf("s3.%s %s: %v", e.Op, target, e.Err)
}

func (e *StorageProviderError) Unwrap() error {
	return e.Err
}

func (e *StorageProviderError) Is(target error) bool {
	return target == ErrStorageProvider
}
