//go:build !linux && !darwin && !freebsd && !openbsd && !netbsd && !dragonfly && !windows

package mem

func lockMemoryPlatform() (ProtectionLevel, error) {
	// Unsupported platforms still get buffer wiping, just no swap
	// prevention.
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
