package vfs

import (
	"errors"
	"fmt"
	"io/fs"
)

// Sentinels carried by PathError.
var (
	ErrNotFound      = fmt.Errorf("no such path: %w", fs.ErrNotExist)
	ErrNotADirectory = errors.New("not a directory")
	ErrNotAFile      = errors.New("not a file")
	ErrInvalidMode   = errors.New("invalid mode")
)

// PathError reports an operation that needed a particular kind of node at a
// path.
type PathError struct {
	Msg  string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s: '%s'", e.Msg, e.Path)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// AsPathError checks if an error is a PathError and returns it.
func AsPathError(err error) (*PathError, bool) {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func notFound(p *Path) error {
	return &PathError{Msg: "No such path", Path: p.String(), Err: ErrNotFound}
}

func notADirectory(p *Path) error {
	return &PathError{Msg: "Not a directory", Path: p.String(), Err: ErrNotADirectory}
}

func notAFile(p *Path) error {
	return &PathError{Msg: "Not a file", Path: p.String(), Err: ErrNotAFile}
}

func unsupported(p *Path, op string) error {
	return &PathError{Msg: op + " is not supported", Path: p.String(), Err: errors.ErrUnsupported}
}
