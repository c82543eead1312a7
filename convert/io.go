package convert

import (
	"fmt"
	"os"

	"github.com/coursemark/forge/job"
)

func defaultReadInput(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func inputErrorRecord(err error) job.ErrorRecord {
	return job.ErrorRecord{
		Kind:    job.InputError,
		Message: fmt.Sprintf("reading input: %s", err),
		IsFatal: true,
	}
}
