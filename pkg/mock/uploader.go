package mock

import (
	"context"
	"sync"
)

// Uploader records file uploads instead of sending them anywhere.
type Uploader struct {
	Uploads map[string]string
	Error   error
	lock    sync.Mutex
}

func NewUploader() *Uploader {
	return &Uploader{
		Uploads: map[string]string{},
	}
}

func (u *Uploader) UploadFile(_ context.Context, filePath, targetPath string) error {
	u.lock.Lock()
	defer u.lock.Unlock()

	u.Uploads[filePath] = targetPath
	return u.Error
}
