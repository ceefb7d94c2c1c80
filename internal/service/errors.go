package service

import (
	"errors"

	"collaborative-whiteboard/internal/repository"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrRoomInitFailed     = errors.New("room init failed: document not found")
	ErrGuestsNotAllowed   = errors.New("guests are not allowed in this room")
	ErrNotInRoom          = errors.New("not in a room")
	ErrInvalidInput       = errors.New("invalid input")
	ErrPersistenceFailure = errors.New("persistence failure")
	ErrInternalServer     = errors.New("internal server error")
)

// mapRepoError 将仓库层错误映射为服务层错误。notFound 是调用方上下文中“未找到”对应的错误。
func mapRepoError(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound) && notFound != nil:
		return notFound
	default:
		return ErrInternalServer
	}
}
