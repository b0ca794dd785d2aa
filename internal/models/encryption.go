package models

// Encryption parameters for outbox at-rest encryption
const (
	NonceSize  = 12
	KeySize    = 32
	Iterations = 100000
)
