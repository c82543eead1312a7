package store

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/coursemark/forge/job"
)

// encodeError and decodeError serialize the structured ErrorRecord into
// the jobs.error BLOB column. msgpack is used, matching the expanded
// ambient-stack decision to prefer a compact binary codec for opaque
// kind-specific/structured bundles over bun's JSON convenience tag.
func encodeError(rec *job.ErrorRecord) ([]byte, error) {
	if rec == nil {
		return nil, nil
	}
	return msgpack.Marshal(rec)
}

func decodeError(data []byte) (*job.ErrorRecord, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var rec job.ErrorRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// encodeEventData and decodeEventData serialize worker_events.data.
func encodeEventData(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return msgpack.Marshal(data)
}

func decodeEventData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := msgpack.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
