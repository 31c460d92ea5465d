package prompts

import "errors"

// Every failure in this package wraps one of these, callers classify with errors.Is.
// None of them is returned as a Go error from the public operations, they are carried
// as the Err field of ListResult and Enrichment.
var (
	ErrCredentialMissing  = errors.New("credential missing")
	ErrNetwork            = errors.New("network failure")
	ErrDecode             = errors.New("decode failure")
	ErrExtraction         = errors.New("extraction failure")
	ErrSchema             = errors.New("schema failure")
	ErrIdentityUnresolved = errors.New("identity unresolved")
)
