//go:build !race

package cryptox

// PasswordCost is the fixed bcrypt work factor for stored credentials.
const PasswordCost = 12

func passwordHashCost() int {
	return PasswordCost
}
