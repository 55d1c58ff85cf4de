package live

import "errors"

var (
	ErrOffline           = errors.New("live source is offline")
	ErrRefreshInProgress = errors.New("a refresh is already in progress")
	ErrFetchFailed       = errors.New("failed to fetch live sessions")
	ErrControllerStopped = errors.New("live controller is stopped")
	ErrViewNotFound      = errors.New("live view has no subscribers")
)
