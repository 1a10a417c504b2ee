package signal

import (
	"fmt"
	"math/rand"
	"strings"
	"time"
)

var adjectives = []string{
	"QUICK", "LAZY", "HAPPY", "CALM", "BRAVE",
	"BRIGHT", "COOL", "DARK", "EAGER", "FAIR",
	"GENTLE", "GRAND", "GREAT", "GREEN", "BLUE",
	"RED", "GOLD", "SILVER", "WARM", "WILD",
}

var nouns = []string{
	"LATTE", "MOCHA", "BEAN", "CUP", "MUG",
	"BREW", "ROAST", "CREMA", "FILTER", "KETTLE",
	"SCONE", "BAGEL", "TOAST", "CAKE", "COOKIE",
	"TABLE", "BENCH", "PORCH", "CAFE", "TERRACE",
}

// Token words, short and easy to read out loud
var tokenWords = []string{
	"tiger", "apple", "river", "cloud", "stone",
	"flame", "ocean", "piano", "robot", "honey",
	"grape", "lemon", "maple", "north", "solar",
}

var rng = rand.New(rand.NewSource(time.Now().UnixNano()))

// GenerateRoomCode creates a session code in ADJECTIVE-NOUN-NN format
func GenerateRoomCode() string {
	adj := adjectives[rng.Intn(len(adjectives))]
	noun := nouns[rng.Intn(len(nouns))]
	return fmt.Sprintf("%s-%s-%02d", adj, noun, rng.Intn(100))
}

// GenerateToken creates a room token in word-NNNN format
func GenerateToken() string {
	word := tokenWords[rng.Intn(len(tokenWords))]
	return fmt.Sprintf("%s-%04d", word, rng.Intn(10000))
}

// NormalizeRoomCode ensures consistent formatting (uppercase, trimmed)
func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateRoomCode accepts 1-64 characters of letters, digits, '-' and '_'.
// Session IDs issued by the booking backend are opaque, so the generated
// ADJECTIVE-NOUN-NN shape is not required.
func ValidateRoomCode(code string) bool {
	if code == "" || len(code) > 64 {
		return false
	}
	for _, r := range code {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
