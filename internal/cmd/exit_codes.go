package cmd

import (
	"context"
	"errors"
	"net"
	"net/url"

	"github.com/spf13/pflag"

	"github.com/upcall/upcall-cli/internal/request"
)

const (
	exitOK          = 0
	exitGeneric     = 1
	exitUsage       = 2
	exitAuth        = 3
	exitNotFound    = 4
	exitForbidden   = 5
	exitRateLimited = 6
	exitServer      = 7
	exitNetwork     = 8
)

// ExitCode maps an error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return exitOK
	}
	if errors.Is(err, pflag.ErrHelp) {
		return exitOK
	}
	if request.IsMissingParameters(err) {
		return exitUsage
	}
	switch status := request.StatusCodeFromError(err); {
	case status == 401:
		return exitAuth
	case status == 403:
		return exitForbidden
	case status == 404:
		return exitNotFound
	case status == 429:
		return exitRateLimited
	case status >= 500:
		return exitServer
	case status >= 400:
		return exitUsage
	}
	if isNetworkError(err) {
		return exitNetwork
	}
	return exitGeneric
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
