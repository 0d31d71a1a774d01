package domain

// SubmissionState gates the submit affordance.
type SubmissionState int

const (
	StateIdle SubmissionState = iota
	StateSubmitting
)

func (s SubmissionState) String() string {
	switch s {
	case StateSubmitting:
		return "submitting"
	default:
		return "idle"
	}
}

const (
	// FailurePlaceholder is the only text shown for any failed submission.
	FailurePlaceholder = "An error occurred during analysis. Please try again."

	MissingFilesMessage = "both a scene image and a report document are required"
)
