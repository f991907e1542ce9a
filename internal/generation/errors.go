package generation

import "errors"

// Constructor dependency errors.
var (
	ErrNilProvider = errors.New("provider client cannot be nil")
	ErrNilLedger   = errors.New("ledger store cannot be nil")
	ErrNilUploader = errors.New("uploader cannot be nil")
	ErrNilLogger   = errors.New("logger cannot be nil")
	ErrNilCatalog  = errors.New("model catalog cannot be nil")
)

// Request-level errors. These are the only errors that propagate out of
// HandleSendMessage; every job-level failure is recovered locally into a
// terminal failed JobUnit instead.
var (
	// ErrUploadFailed aborts the entire request before any job is created.
	ErrUploadFailed = errors.New("reference image upload failed")
)
