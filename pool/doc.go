// Package pool implements the Pool Manager: given a desired
// {kind: (count, mode)} configuration, it launches the corresponding
// Worker Runtime processes or containers, supervises their registry
// entries for stale heartbeats and dead handles, and applies the
// no-auto-restart-on-crash-loop policy.
//
// Launch itself is substrate-specific (package pool provides a
// DirectLauncher for os/exec child processes and a ContainerLauncher for
// containerd-managed containers); everything past that — resource
// bounds, supervision, shutdown — is substrate-agnostic and lives in
// Manager.
package pool
