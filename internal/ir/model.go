package ir

// Expectation kinds as written in suite files. Each expect entry sets
// exactly one of them.
const (
	ExpectStatus         = "status"
	ExpectJSON           = "json"
	ExpectJSONLike       = "jsonLike"
	ExpectJSONSchema     = "jsonSchema"
	ExpectJSONSchemaFile = "jsonSchemaFile"
	ExpectBodyContains   = "bodyContains"
	ExpectHeader         = "header"
	ExpectContract       = "contract"
)

type TestSuite struct {
	Name      string            `json:"name" yaml:"name"`
	BaseURL   string            `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`
	OpenAPI   string            `json:"openapi,omitempty" yaml:"openapi,omitempty"`
	TimeoutMs int               `json:"timeoutMs,omitempty" yaml:"timeoutMs,omitempty"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Cases     []Case            `json:"cases" yaml:"cases"`
}

type Case struct {
	Name    string        `json:"name" yaml:"name"`
	Tags    []string      `json:"tags,omitempty" yaml:"tags,omitempty"`
	Request Request       `json:"request" yaml:"request"`
	Expect  []Expectation `json:"expect,omitempty" yaml:"expect,omitempty"`
	// Capture maps a variable name to a dotted path into the JSON response
	// body ("id", "items.0.id"). Captured values are visible to later cases.
	Capture map[string]string `json:"capture,omitempty" yaml:"capture,omitempty"`
}

type Request struct {
	Method    string            `yaml:"method"  json:"method"`
	URL       string            `yaml:"url"     json:"url"`
	Headers   map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	JSON      any               `yaml:"json,omitempty" json:"json,omitempty"`
	Text      *string           `yaml:"text,omitempty" json:"text,omitempty"`
	TimeoutMs int               `yaml:"timeoutMs,omitempty" json:"timeoutMs,omitempty"`
}

type Expectation struct {
	Status         *int               `json:"status,omitempty" yaml:"status,omitempty"`
	JSON           any                `json:"json,omitempty" yaml:"json,omitempty"`
	JSONLike       any                `json:"jsonLike,omitempty" yaml:"jsonLike,omitempty"`
	JSONSchema     any                `json:"jsonSchema,omitempty" yaml:"jsonSchema,omitempty"`
	JSONSchemaFile string             `json:"jsonSchemaFile,omitempty" yaml:"jsonSchemaFile,omitempty"`
	BodyContains   *string            `json:"bodyContains,omitempty" yaml:"bodyContains,omitempty"`
	Header         *HeaderExpectation `json:"header,omitempty" yaml:"header,omitempty"`
	Contract       bool               `json:"contract,omitempty" yaml:"contract,omitempty"`
}

type HeaderExpectation struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Kinds lists the kinds set on e, in declaration order of the fields.
func (e Expectation) Kinds() []string {
	var out []string
	if e.Status != nil {
		out = append(out, ExpectStatus)
	}
	if e.JSON != nil {
		out = append(out, ExpectJSON)
	}
	if e.JSONLike != nil {
		out = append(out, ExpectJSONLike)
	}
	if e.JSONSchema != nil {
		out = append(out, ExpectJSONSchema)
	}
	if e.JSONSchemaFile != "" {
		out = append(out, ExpectJSONSchemaFile)
	}
	if e.BodyContains != nil {
		out = append(out, ExpectBodyContains)
	}
	if e.Header != nil {
		out = append(out, ExpectHeader)
	}
	if e.Contract {
		out = append(out, ExpectContract)
	}
	return out
}

// Kind returns the single kind of a validated expectation, or "" when e
// sets none or several.
func (e Expectation) Kind() string {
	if k := e.Kinds(); len(k) == 1 {
		return k[0]
	}
	return ""
}
