//go:build !windows

package main

import "errors"

func runService(string) error {
	return errors.New("-service is only supported on Windows")
}

func handleServiceCommand([]string) bool {
	return false
}
