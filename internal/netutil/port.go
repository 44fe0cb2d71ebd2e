// Package netutil picks a usable bind address for the hub's HTTP listener.
package netutil

import (
	"fmt"
	"net"
)

// SelectBindAddr returns the preferred address when it is free, otherwise
// walks the candidate list when auto fallback is enabled.
func SelectBindAddr(preferred string, candidates []string, autoFallback bool) (string, error) {
	if preferred != "" {
		ok, err := addrAvailable(preferred)
		if err != nil {
			return "", err
		}
		if ok {
			return preferred, nil
		}
		if !autoFallback {
			return "", fmt.Errorf("bind address in use: %s", preferred)
		}
	}

	for _, addr := range candidates {
		ok, err := addrAvailable(addr)
		if err != nil {
			return "", err
		}
		if ok {
			return addr, nil
		}
	}

	return "", fmt.Errorf("no free bind address among %d candidates", len(candidates))
}

// addrAvailable probes an address by listening on it briefly.
func addrAvailable(addr string) (bool, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return false, nil
	}
	if closeErr := ln.Close(); closeErr != nil {
		return false, closeErr
	}
	return true, nil
}
