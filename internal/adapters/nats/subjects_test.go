package natsadapter

import "testing"

func TestSubjects(t *testing.T) {
	tests := []struct {
		user, progress, completed, events string
	}{
		{"omar", "search.progress.omar", "search.completed.omar", "search.*.omar"},
		{"j.doe", "search.progress.j_doe", "search.completed.j_doe", "search.*.j_doe"},
		{"a b>*", "search.progress.a_b__", "search.completed.a_b__", "search.*.a_b__"},
		{"", "search.progress._", "search.completed._", "search.*._"},
	}
	for _, tt := range tests {
		if got := SubjectProgress(tt.user); got != tt.progress {
			t.Errorf("SubjectProgress(%q) = %q, want %q", tt.user, got, tt.progress)
		}
		if got := SubjectCompleted(tt.user); got != tt.completed {
			t.Errorf("SubjectCompleted(%q) = %q, want %q", tt.user, got, tt.completed)
		}
		if got := SubjectUserEvents(tt.user); got != tt.events {
			t.Errorf("SubjectUserEvents(%q) = %q, want %q", tt.user, got, tt.events)
		}
	}
}
