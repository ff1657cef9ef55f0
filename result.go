package emailfinder

// Result is the full outcome of one address verification.
// Status is always set and Reason explains it. Optional strings are empty
// when the information was not available.
type Result struct {
	Email          string `json:"email"`
	Status         Status `json:"status"`
	MXRecord       string `json:"mx_record,omitempty"`
	SMTPBanner     string `json:"smtp_banner,omitempty"`
	SMTPCode       int    `json:"smtp_code,omitempty"`
	HasSPF         bool   `json:"has_spf"`
	HasDMARC       bool   `json:"has_dmarc"`
	DMARCPolicy    string `json:"dmarc_policy,omitempty"`
	IsRoleAccount  bool   `json:"is_role_account"`
	IsFreeProvider bool   `json:"is_free_provider"`
	IsDisposable   bool   `json:"is_disposable"`
	Suggestion     string `json:"suggestion,omitempty"`
	Reason         string `json:"reason"`
}

// Bucket returns the display bucket of the result's status.
func (r Result) Bucket() Bucket {
	return r.Status.Bucket()
}

// Deliverable reports whether the server accepted the address and does not
// accept everything.
func (r Result) Deliverable() bool {
	return r.Status == StatusValid
}
