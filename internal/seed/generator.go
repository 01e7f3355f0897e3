package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/profile"
)

var firstNames = []string{
	"Ada", "Alan", "Barbara", "Claude", "Donald", "Edsger", "Frances",
	"Grace", "John", "Katherine", "Leslie", "Margaret", "Niklaus", "Radia",
}

var lastNames = []string{
	"Lovelace", "Turing", "Liskov", "Shannon", "Knuth", "Dijkstra", "Allen",
	"Hopper", "Backus", "Johnson", "Lamport", "Hamilton", "Wirth", "Perlman",
}

var genders = []profile.Gender{
	profile.GenderFemale,
	profile.GenderMale,
	profile.GenderOther,
	profile.GenderUnspecified,
}

// Generator produces deterministic synthetic identities. The same seed always
// yields the same sequence, so seeded environments are reproducible.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator creates a generator from a fixed seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

// Identity builds the i-th candidate and its profile payload. The index keeps
// usernames unique within a batch regardless of name collisions.
func (g *Generator) Identity(i int) (account.Candidate, profile.Payload) {
	first := firstNames[g.rng.Intn(len(firstNames))]
	last := lastNames[g.rng.Intn(len(lastNames))]

	username := fmt.Sprintf("%s.%s%02d", strings.ToLower(first), strings.ToLower(last), i)
	candidate := account.Candidate{
		Username: username,
		Email:    username + "@seed.example",
		Password: fmt.Sprintf("seed-%016x", g.rng.Int63()),
	}

	dob := time.Date(1960+g.rng.Intn(45), time.Month(1+g.rng.Intn(12)), 1+g.rng.Intn(28),
		0, 0, 0, 0, time.UTC)
	payload := profile.Payload{
		FirstName:   first,
		LastName:    last,
		DateOfBirth: dob,
		Gender:      genders[g.rng.Intn(len(genders))],
		PhoneNumber: fmt.Sprintf("+1555%07d", g.rng.Intn(10000000)),
	}
	return candidate, payload
}
