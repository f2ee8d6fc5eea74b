// Package contact handles the public Contact Us form: validation, optional
// attachment storage and the confirmation email.
package contact

import (
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

// Subject is the topic picked on the form.
type Subject string

const (
	SubjectTechnicalSupport Subject = "technical-support"
	SubjectSales            Subject = "sales"
	SubjectPartnership      Subject = "partnership"
	SubjectBugReport        Subject = "bug-report"
	SubjectOther            Subject = "other"

	MinMessageRunes = 10
)

// Subjects lists the accepted values in form order.
var Subjects = []Subject{SubjectTechnicalSupport, SubjectSales, SubjectPartnership, SubjectBugReport, SubjectOther}

var subjectLabels = map[Subject]string{
	SubjectTechnicalSupport: "Technical Support",
	SubjectSales:            "Sales Inquiry",
	SubjectPartnership:      "Partnership Opportunities",
	SubjectBugReport:        "Bug Report",
	SubjectOther:            "Other",
}

// Label is the human readable subject.
func (s Subject) Label() string {
	if l, ok := subjectLabels[s]; ok {
		return l
	}
	return string(s)
}

func (s Subject) Valid() bool {
	return slices.Contains(Subjects, s)
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Request is a contact form submission.
type Request struct {
	FullName     string  `json:"full_name"`
	Email        string  `json:"email"`
	Organization string  `json:"organization,omitempty"`
	Subject      Subject `json:"subject"`
	Message      string  `json:"message"`
}

// Validate trims the text fields and checks them in form order. All problems
// are reported, keyed by field.
func (r *Request) Validate() error {
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	r.Organization = strings.TrimSpace(r.Organization)
	r.Message = strings.TrimSpace(r.Message)

	var errs ValidationError
	if r.FullName == "" {
		errs = append(errs, FieldError{Field: "full_name", Message: "Full name is required"})
	}
	switch {
	case r.Email == "":
		errs = append(errs, FieldError{Field: "email", Message: "Email is required"})
	case !emailPattern.MatchString(r.Email):
		errs = append(errs, FieldError{Field: "email", Message: "Please enter a valid email address"})
	}
	if !r.Subject.Valid() {
		errs = append(errs, FieldError{Field: "subject", Message: "Please select a subject"})
	}
	switch {
	case r.Message == "":
		errs = append(errs, FieldError{Field: "message", Message: "Message is required"})
	case utf8.RuneCountInString(r.Message) < MinMessageRunes:
		errs = append(errs, FieldError{Field: "message", Message: "Message must be at least 10 characters long"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// FieldError is one rejected form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists rejected fields in form order.
type ValidationError []FieldError

func (v ValidationError) Error() string {
	if len(v) == 0 {
		return "contact: invalid request"
	}
	return "contact: " + v[0].Field + ": " + v[0].Message
}

// Fields maps field names to their message.
func (v ValidationError) Fields() map[string]string {
	out := make(map[string]string, len(v))
	for _, fe := range v {
		out[fe.Field] = fe.Message
	}
	return out
}

// Inquiry is an accepted submission.
type Inquiry struct {
	ID            string    `json:"id"`
	Request       Request   `json:"-"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}
