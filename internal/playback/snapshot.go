package playback

// Snapshot is the read-only view of playback state handed to the renderer
// and to the status reporter on each tick. It is a value copy; holding one
// never blocks or observes later mutations.
type Snapshot struct {
	PresentationID   string  `json:"presentationId"`
	PresentationName string  `json:"presentationName"`
	SlideIndex       int     `json:"slideIndex"`
	SlideCount       int     `json:"slideCount"`
	Slide            Slide   `json:"slide"`
	RemainingMs      int64   `json:"remainingMs"`
	Playing          bool    `json:"playing"`
	AutoPlay         bool    `json:"autoPlay"`
	Looping          bool    `json:"looping"`
	LoopCount        int     `json:"loopCount"`
	ProgressFraction float64 `json:"progressFraction"`
	ChangeInProgress bool    `json:"changeInProgress"`
	EndReached       bool    `json:"endReached"`
	Recoveries       int     `json:"recoveries"`
	LastError        string  `json:"lastError,omitempty"`
}
