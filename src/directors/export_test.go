package directors

// resetCollectionRegistry clears the process-wide registry so each test starts fresh.
func resetCollectionRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registryInstance = nil
}
