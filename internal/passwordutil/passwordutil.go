package passwordutil

import "math/rand"

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// DefaultLength matches the admin API's minimum-friendly default for
// generated account passwords.
const DefaultLength = 10

// Alphanumeric returns a random password of n characters drawn
// uniformly from [A-Za-z0-9]. Collisions between calls are acceptable
// and not checked.
func Alphanumeric(n int) string {
	if n <= 0 {
		n = DefaultLength
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = alphanumeric[rand.Intn(len(alphanumeric))]
	}
	return string(b)
}
