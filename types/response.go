package types

// RunResponse is the uniform result envelope returned for a run request
type RunResponse struct {
	Message *string `json:"message"`
	Run     bool    `json:"run"`
	Passed  bool    `json:"passed"`
	State   State   `json:"state"`
	Log     *string `json:"log"`
	Title   string  `json:"title,omitempty"`
}

// MessageText returns the message or an empty string.
func (r RunResponse) MessageText() string {
	if r.Message == nil {
		return ""
	}
	return *r.Message
}

// LogText returns the rendered log or an empty string.
func (r RunResponse) LogText() string {
	if r.Log == nil {
		return ""
	}
	return *r.Log
}

// CheckResult is the outcome of a preflight check on a resource
type CheckResult struct {
	Resource string `json:"resource"`
	Config   string `json:"config"`
	Error    string `json:"error,omitempty"`
	Ready    bool   `json:"ready"`
}
