//go:build windows

package mem

// VirtualLock exists on Windows but is per-region and quota-bound; buffer
// wiping remains the primary protection there.
func lockMemoryPlatform() (ProtectionLevel, error) {
	return ProtectionPartial, nil
}

func unlockMemoryPlatform() error {
	return nil
}
