package chat

// Pane names one endpoint's half of the page and its conversation.
type Pane string

const (
	// PaneBasic is the plain completions endpoint.
	PaneBasic Pane = "basic"
	// PaneRAG is the retrieval-augmented completions endpoint.
	PaneRAG Pane = "rag"
)

// BubbleKind tags a bubble for display.
type BubbleKind string

const (
	BubbleUser  BubbleKind = "user"
	BubbleBot   BubbleKind = "bot"
	BubbleError BubbleKind = "error"
)

// Bubble is one message element in a pane.
type Bubble struct {
	ID   string
	Kind BubbleKind
	HTML string
	// Loading shows a typing indicator until the bubble is first updated.
	Loading bool
}

// View receives the visual history of both panes. Implementations must tolerate calls from the
// turn goroutine and from a Scheduler's goroutine.
type View interface {
	AppendBubble(pane Pane, b Bubble) error
	UpdateBubble(pane Pane, id string, html string) error
	// ReplaceBubble swaps the whole bubble with b.ID for b, kind included.
	ReplaceBubble(pane Pane, b Bubble) error
}
