package expect

import (
	"context"

	"contractkit/internal/contract"
	"contractkit/internal/response"
)

type openAPIContract struct{ v *contract.Validator }

// OpenAPIContract validates status, headers and body against the operation
// the request resolves to in an OpenAPI document.
func OpenAPIContract(v *contract.Validator) Expectation { return openAPIContract{v: v} }

func (openAPIContract) Kind() string { return KindContract }

func (e openAPIContract) Match(rec *response.Record) Result {
	if e.v == nil {
		return failf("contract: requested but no OpenAPI document configured")
	}
	op, err := e.v.ValidateResponse(context.Background(), rec)
	if err != nil {
		if op.Path != "" {
			return failf("contract: %s %s: %v", op.Method, op.Path, err)
		}
		return failf("contract: %v", err)
	}
	return pass()
}
