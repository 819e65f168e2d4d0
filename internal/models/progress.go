package models

// ReviewIndex is the CurrentIndex value of the review state, in which every
// sounding note is labelled
const ReviewIndex = -1

// ExerciseProgress is owned and mutated by the exercise host; this module only
// reads it once per animation frame
type ExerciseProgress struct {
	CurrentIndex     int          `json:"current_index"`
	Completed        map[int]bool `json:"completed,omitempty"`
	Incorrect        map[int]bool `json:"incorrect,omitempty"`
	ExerciseComplete bool         `json:"exercise_complete"`
}

// NewProgress builds a progress snapshot from index lists
func NewProgress(current int, completed, incorrect []int) ExerciseProgress {
	p := ExerciseProgress{
		CurrentIndex: current,
		Completed:    make(map[int]bool, len(completed)),
		Incorrect:    make(map[int]bool, len(incorrect)),
	}
	for _, i := range completed {
		p.Completed[i] = true
	}
	for _, i := range incorrect {
		p.Incorrect[i] = true
	}
	return p
}

// InReview reports whether the overlay should label every sounding note
func (p ExerciseProgress) InReview() bool {
	return p.CurrentIndex == ReviewIndex
}

// IsCompleted reports whether the note was answered correctly
func (p ExerciseProgress) IsCompleted(i int) bool {
	return p.Completed[i]
}

// IsIncorrect reports whether the note was answered incorrectly
func (p ExerciseProgress) IsIncorrect(i int) bool {
	return p.Incorrect[i]
}

// IsAnswered reports whether the note has either outcome
func (p ExerciseProgress) IsAnswered(i int) bool {
	return p.Completed[i] || p.Incorrect[i]
}
