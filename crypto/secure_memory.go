package crypto

// ZeroBytes overwrites the given slice with zeros. Used to wipe copies of
// private key material once they are no longer needed. Best effort: the
// runtime may have made copies we cannot reach.
func ZeroBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
