package types

// ChatRequest is the single inbound operation posted by the widget.
type ChatRequest struct {
	Message     string `json:"message"`
	UserProfile string `json:"userProfile"`
	SessionID   string `json:"sessionId"`
	// AudioData carries a base64-encoded audio clip when the user spoke
	// instead of typing. A "data:...;base64," prefix is tolerated.
	AudioData string `json:"audioData,omitempty"`
	AudioMIME string `json:"audioMime,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// ResultItem is one discoverable entity (event, artist or venue) rendered
// as a card by the widget. Only Type and Title are expected to be present.
type ResultItem struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	City  string `json:"city,omitempty"`
	Date  string `json:"date,omitempty"`
	Genre string `json:"genre,omitempty"`
	Image string `json:"image,omitempty"`
	URL   string `json:"url,omitempty"`
	Price string `json:"price,omitempty"`
}

// ChatReply is the normalized reply returned for every turn. Error replies
// use the same shape: a user-safe Message, empty Results, and the diagnostic
// detail tucked into Error for operator visibility.
type ChatReply struct {
	SessionID       string       `json:"sessionId,omitempty"`
	Message         string       `json:"message"`
	Results         []ResultItem `json:"results"`
	ShowCalendly    bool         `json:"showCalendly"`
	TranscribedText string       `json:"transcribedText,omitempty"`
	Error           string       `json:"error,omitempty"`
}
