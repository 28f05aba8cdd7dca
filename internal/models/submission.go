package models

// Submission is the request-scoped input of one form post. It is built when
// the form is submitted and discarded after the result is rendered.
// Authenticated is a snapshot of the session's gate flag; Credential is
// never logged.
type Submission struct {
	Credential    string
	Prompt        string
	N             int
	Size          string
	Authenticated bool
}

// Outcome is what the form renders after a submission.
type Outcome struct {
	Prompt     string   `json:"prompt"`
	ImageURL   string   `json:"image_url"`
	ImageURLs  []string `json:"image_urls,omitempty"`
	StatusCode int      `json:"status_code"`
	Generated  bool     `json:"generated"`
	Filename   string   `json:"filename,omitempty"`
	SavedPath  string   `json:"saved_path,omitempty"`
	SaveError  string   `json:"save_error,omitempty"`
}
