package fsm

// MaterializeRequest is the FSM input
type MaterializeRequest struct {
	URL  string
	Name string
}

// MaterializeResponse is the FSM output (accumulated across transitions)
type MaterializeResponse struct {
	// From CheckCache
	ImageID int64
	Cached  bool

	// From Download / Verify
	LocalPath string
	Digest    string
	Size      int64

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckCache = "check_cache"
	StateDownload   = "download"
	StateVerify     = "verify"
	StateComplete   = "complete"
	StateFailed     = "failed"
)
