package config

import "errors"

// Configuration validation errors returned by Config.Validate and LoadRules.
var (
	ErrNoDomain           = errors.New("no domain specified")
	ErrInvalidDomain      = errors.New("invalid domain: expected an http or https host")
	ErrInvalidRunLimit    = errors.New("invalid run limit: must be positive")
	ErrInvalidRateLimit   = errors.New("invalid rate limit: must be non-negative")
	ErrInvalidPollTimeout = errors.New("invalid poll timeout: must be positive")
	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrRulesNotFound is returned when the rules file does not exist.
	ErrRulesNotFound = errors.New("rules file not found")

	ErrNoRules       = errors.New("rules file defines no rules")
	ErrUnnamedRule   = errors.New("rule without a name")
	ErrDuplicateRule = errors.New("duplicate rule name")
)
