// Package lifecycle implements the Lifecycle Manager: the policy layer
// between a client build invocation and the Pool Manager that decides
// whether to reuse already-running workers, how many new ones to start,
// and which of those this invocation is responsible for stopping again.
package lifecycle
