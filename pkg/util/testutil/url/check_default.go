//go:build testing && !linux

package url

import "testing"

func environmentCheck(_ string, _ testing.TB) bool {
	return true
}
