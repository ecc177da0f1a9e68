//go:build !race

package auth

func passwordHashCost() int {
	// Intentionally above bcrypt.DefaultCost: hashing is meant to be expensive.
	return 12
}
