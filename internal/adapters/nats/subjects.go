package natsadapter

import "strings"

const (
	subjectProgressPrefix  = "search.progress."
	subjectCompletedPrefix = "search.completed."

	// SubjectAllCompleted matches the completion events of every user.
	SubjectAllCompleted = subjectCompletedPrefix + ">"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// userToken turns a username into a single subject token.
func userToken(username string) string {
	if username == "" {
		return "_"
	}
	return tokenReplacer.Replace(username)
}

// SubjectProgress is the per-cell progress subject of a user.
func SubjectProgress(username string) string { return subjectProgressPrefix + userToken(username) }

// SubjectCompleted is the completion subject of a user.
func SubjectCompleted(username string) string { return subjectCompletedPrefix + userToken(username) }

// SubjectUserEvents matches both progress and completion events of a user.
func SubjectUserEvents(username string) string { return "search.*." + userToken(username) }
