package storage

import (
	"errors"
	"fmt"
	"io"
)

var ErrUnknownType = errors.New("storage: unknown storage type")

type StorageAPI interface {
	Save(path string, reader io.Reader) (int64, error)
	Load(path string, writer io.Writer) (int64, error)
	Delete(path string) error
	// FreeSpace reports bytes available, ok=false when the backend has no such notion
	FreeSpace() (free uint64, ok bool, err error)
}

func New(bucket *Bucket) (StorageAPI, error) {
	switch bucket.StorageType {
	case StorageTypeFile:
		return NewDiskStorage(bucket), nil
	case StorageTypeS3:
		return NewS3Storage(bucket)
	}
	return nil, fmt.Errorf("%w: %d", ErrUnknownType, bucket.StorageType)
}

// DeleteAll removes every path, returning the first error
func DeleteAll(s StorageAPI, paths ...string) (err error) {
	for _, path := range paths {
		if e := s.Delete(path); e != nil && err == nil {
			err = e
		}
	}
	return
}
