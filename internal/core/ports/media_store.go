package ports

import "context"

// MediaStore uploads staged files to the remote media host. Upload removes
// the local file on every exit path, success or failure.
type MediaStore interface {
	Upload(ctx context.Context, localPath string) (url string, err error)
	Remove(ctx context.Context, url string) error
}

// MediaCleanupJob asks for a previously uploaded object to be deleted,
// typically after its URL was replaced on the user record.
type MediaCleanupJob struct {
	UserID string
	URL    string
}

// MediaCleanup accepts cleanup jobs for asynchronous processing.
type MediaCleanup interface {
	Enqueue(job MediaCleanupJob)
}
