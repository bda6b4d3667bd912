package models

// Report is the offline analysis of one trace session.
type Report struct {
	Session        TraceMeta             `json:"session"`
	Endpoints      []Endpoint            `json:"endpoints"`
	Authentication *AuthenticationScheme `json:"authentication"`
	Cookies        []string              `json:"cookies"`
	Summary        Summary               `json:"summary"`
}

// Endpoint groups the requests that share a method and normalized URL.
type Endpoint struct {
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Pattern        string            `json:"pattern"`
	RequestHeaders map[string]string `json:"requestHeaders"`
	Cookies        []string          `json:"cookies"`
	RequestBody    *RequestBodyInfo  `json:"requestBody"`
	ResponseFormat *ResponseFormat   `json:"responseFormat"`
	StatusCodes    []int             `json:"statusCodes"`
	CallCount      int               `json:"callCount"`
}

type RequestBodyInfo struct {
	Type    string `json:"type"` // json, text
	Schema  any    `json:"schema,omitempty"`
	Example any    `json:"example"`
}

type ResponseFormat struct {
	Type   string `json:"type"`
	Schema any    `json:"schema,omitempty"`
}

// AuthenticationScheme is the scheme detected from the first request that
// carried credentials.
type AuthenticationScheme struct {
	Type       string `json:"type"` // bearer_token, basic_auth, api_key, custom
	HeaderName string `json:"headerName"`
	Pattern    string `json:"pattern,omitempty"`
}

type Summary struct {
	TotalRequests   int      `json:"totalRequests"`
	APIRequests     int      `json:"apiRequests"`
	UniqueEndpoints int      `json:"uniqueEndpoints"`
	Methods         []string `json:"methods"`
}

const (
	AuthBearerToken = "bearer_token"
	AuthBasic       = "basic_auth"
	AuthAPIKey      = "api_key"
	AuthCustom      = "custom"
)
