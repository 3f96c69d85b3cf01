package files

import "fmt"

// UploadStep names the stage of Upload that failed.
type UploadStep string

const (
	StepRequest  UploadStep = "request"
	StepPut      UploadStep = "put"
	StepRegister UploadStep = "register"
)

type DownloadError struct {
	Path       string
	StatusCode int
	Body       string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file download %s failed: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("file download %s failed: status code %d", e.Path, e.StatusCode)
}

func (e *DownloadError) Unwrap() error { return e.Err }

type UploadError struct {
	Step       UploadStep
	StatusCode int
	Body       string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file upload %s step failed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("file upload %s step failed: status code %d", e.Step, e.StatusCode)
}

func (e *UploadError) Unwrap() error { return e.Err }
