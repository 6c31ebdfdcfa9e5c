//go:build race

package cryptox

import "golang.org/x/crypto/bcrypt"

// PasswordCost is the fixed bcrypt work factor for stored credentials.
const PasswordCost = 12

func passwordHashCost() int {
	// Race-enabled builds are an order of magnitude slower; keep tests inside their timeouts.
	return bcrypt.MinCost
}
