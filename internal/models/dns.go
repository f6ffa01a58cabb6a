package models

import (
	"fmt"
	"time"
)

type MXRecord struct {
	Host       string `json:"host"`
	Preference uint16 `json:"preference"`
}

// DNSCheckResult is the outcome of one verification pass. It is never persisted as is.
type DNSCheckResult struct {
	Domain               string    `json:"domain"`
	VerificationTxtFound bool      `json:"verificationTxtFound"`
	MxValid              bool      `json:"mxValid"`
	SpfValid             bool      `json:"spfValid"`
	DkimValid            bool      `json:"dkimValid"`
	TrackingCnameValid   bool      `json:"trackingCnameValid"`
	CheckedAt            time.Time `json:"checkedAt"`

	VerificationTXT []string          `json:"verificationTxt"`
	MX              []MXRecord        `json:"mx"`
	ApexTXT         []string          `json:"apexTxt"`
	DKIM            []string          `json:"dkim"`
	TrackingCNAME   []string          `json:"trackingCname"`
	LookupErrors    map[string]string `json:"lookupErrors,omitempty"`
}

// AllRecordsValid gates the verified state: ownership TXT, MX and SPF.
func (r *DNSCheckResult) AllRecordsValid() bool {
	return r.VerificationTxtFound && r.MxValid && r.SpfValid
}

// FullyValid additionally requires DKIM and the tracking CNAME.
func (r *DNSCheckResult) FullyValid() bool {
	return r.AllRecordsValid() && r.DkimValid && r.TrackingCnameValid
}

// DNSInstruction is a record the domain owner has to publish.
type DNSInstruction struct {
	Purpose  string `json:"purpose"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Value    string `json:"value"`
	Priority int    `json:"priority,omitempty"`
	Required bool   `json:"required"`
	Valid    bool   `json:"valid"`
}

func (i DNSInstruction) String() string {
	if i.Priority > 0 {
		return fmt.Sprintf("%s %s %d %s", i.Host, i.Type, i.Priority, i.Value)
	}
	return fmt.Sprintf("%s %s %q", i.Host, i.Type, i.Value)
}
