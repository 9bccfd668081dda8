package achievement

const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 4000
	MaxReasonLen      = 1000

	maxConflictRetries = 3
)
