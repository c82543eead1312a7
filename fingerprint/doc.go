// Package fingerprint computes the content-addressing digest used as the
// cache key component throughout forge.
//
// A fingerprint is a cryptographic digest over the exact bytes that will
// be fed to a converter, combined with a params salt so that two requests
// with identical input bytes but different kind-specific parameters never
// collide in the cache.
package fingerprint
