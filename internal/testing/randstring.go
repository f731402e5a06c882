package testing

import (
	"math/rand"
	"strings"
)

const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

// RandString generates random alphabetic string of 10 symbols, valid as a username
func RandString() string {
	return RandStringN(10)
}

// RandStringN generates random alphabetic string of n symbols
func RandStringN(n int) string {
	var out strings.Builder
	out.Grow(n)
	for i := 0; i < n; i++ {
		out.WriteByte(letters[rand.Intn(len(letters))])
	}
	return out.String()
}
