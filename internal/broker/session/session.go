package session

// Session is the per-document state owned by the conflict-resolution
// engine. All fields are single-writer: every mutation happens on the
// document broker's serialized event stream, so no locking is needed.
type Session struct {
	DocKey string
	Policy Policy
	Phase  Phase

	// Modified is set when an edit notification arrives and cleared by a
	// successful upload. EverModified stays set for the session lifetime
	// and drives the always_save_on_exit decision.
	Modified     bool
	EverModified bool

	// StoreFailureCount counts failed PutFile attempts in the current
	// modification cycle. It never exceeds the configured limit: once the
	// limit is reached no further attempts are made.
	StoreFailureCount int

	// OriginalContent is the content fetched at load time;
	// RemoteVersion tracks the storage version the local content is
	// based on.
	OriginalContent []byte
	RemoteVersion   string

	// Attempt counters and their expected values. Expected counts are
	// explicit per-session fields so concurrent documents cannot
	// interfere; a negative expected value disables the check.
	GetFileCount    int
	PutFileCount    int
	ExpectedGetFile int
	ExpectedPutFile int

	// UnsavedDataDetected records that the unload guard fired this cycle.
	UnsavedDataDetected bool

	// UserResolved is set when an explicit closedocument or forced save
	// resolved the modification, suppressing the unload guard.
	UserResolved bool

	// UploadSucceeded is set once a PutFile attempt was accepted.
	UploadSucceeded bool
}

// New creates a session in PhaseWaitLoadStatus with the default expected
// exchange counts: exactly one GetFile per load, and as many PutFile
// attempts as the failure limit allows. Verify-only sessions must never
// upload.
func New(docKey string, policy Policy, limitStoreFailures int) *Session {
	expectedPut := limitStoreFailures
	if !policy.rules().expectsUpload {
		expectedPut = 0
	}
	return &Session{
		DocKey:          docKey,
		Policy:          policy,
		Phase:           PhaseWaitLoadStatus,
		ExpectedGetFile: 1,
		ExpectedPutFile: expectedPut,
	}
}

// SetExpectedPutFile overrides the expected PutFile count for scenarios
// whose attempt budget differs from the failure limit (e.g. a conflict
// followed by a successful forced upload). A negative value disables the
// check.
func (s *Session) SetExpectedPutFile(n int) { s.ExpectedPutFile = n }

// SetExpectedGetFile overrides the expected GetFile count. A negative
// value disables the check.
func (s *Session) SetExpectedGetFile(n int) { s.ExpectedGetFile = n }
