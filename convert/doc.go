// Package convert provides forge.Converter adapters: FuncConverter for
// in-process conversion and SubprocessConverter for the external-program
// case, plus Classify, which turns a raw Go error from either into the
// structured job.ErrorRecord the Worker Runtime persists.
//
// Neither adapter implements the attempt/backoff loop described in the
// Worker Runtime's error-handling design (that belongs to package
// runtime, which calls Convert once per attempt with a fresh, bounded
// context); this package only adapts one invocation.
package convert
