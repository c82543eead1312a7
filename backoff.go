package forge

import "github.com/coursemark/forge/internal"

// BackoffConfig parameterizes retry delay computation. It is a type alias
// for internal.BackoffConfig, the type package store and runtime use for
// their retry schedules, so importers of forge can name it without
// importing package internal.
type BackoffConfig = internal.BackoffConfig
