package reporter

import (
	"encoding/json"
	"io"

	"contractkit/internal/contract"
)

// NewCoverageSink writes the OpenAPI operation coverage of the run. The
// validator must be the one used by the contract expectations.
func NewCoverageSink(t Target, v *contract.Validator) Sink {
	return &fileSink{name: "coverage", target: t, render: func(w io.Writer, _ Summary) error {
		return WriteCoverage(w, v.Coverage())
	}}
}

func WriteCoverage(w io.Writer, rep contract.CoverageReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
