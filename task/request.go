package task

// Request is the caller-supplied description of one conversion.
//
// InputPath and OutputPath name the source artifact and the destination
// of the rendered output, respectively. Fingerprint is the content
// digest computed by the caller over the exact bytes that will be fed to
// the converter (see package fingerprint); it is also the cache key
// component alongside OutputPath.
//
// Params is an opaque, kind-specific parameter bundle. forge does not
// interpret it; it is serialized by the Durable Store and handed back to
// the converter verbatim.
//
// Correlation is an opaque token the caller uses to group requests that
// originated from one client call; forge preserves and echoes it back
// but never interprets it.
//
// Priority orders claiming: higher values are claimed first, ties broken
// by insertion order.
type Request struct {
	Kind        Kind
	InputPath   string
	OutputPath  string
	Fingerprint string
	Params      []byte
	Correlation string
	Priority    int32
}
