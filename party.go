/*
Copyright © 2026 iknowur contributors
*/

// iknowur prediction party
//
// Each member of a party commits five secret predictions about the other
// members: the prediction text is encrypted client-side and bound by a
// sha256 commit hash before anyone knows how things turn out. Once every
// member has submitted, the party activates. A member may later reveal
// ("claim") one of their own predictions by providing the original text and
// salt; the server recomputes the commit hash, and if it matches, the rest
// of the party votes on whether the prediction came true. A strict majority
// of yes-votes scores the claimant a point; a strict majority of no-votes,
// or a full round of voting without one, costs a point.
//
// Features:
// - Parties joined by 6-char codes drawn from an unambiguous alphabet
// - One prediction batch of exactly five per member, immutable once submitted
// - Commit-reveal verification at claim time (sha256 over "text::salt")
// - Majority voting with immediate finalization once decisive
// - Per-viewer projection: only authors see their own commit payloads
// - WebSocket rooms per party for change notification: /api/parties/:partyid/ws
// - In-browser QR sharing of the join code, backed by go-qrcode
// - JSON snapshot persistence, recovered as empty when corrupt

package main

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// StageCollecting is the initial party stage: members may join and
	// submit predictions.
	StageCollecting = "collecting"
	// StageActive is entered once every member has submitted; claims and
	// votes become legal, joining and submission do not.
	StageActive = "active"
)

// Prediction claim statuses. A prediction moves available → pending →
// scored|rejected and never backwards.
const (
	ClaimAvailable = "available"
	ClaimPending   = "pending"
	ClaimScored    = "scored"
	ClaimRejected  = "rejected"
)

// Claim statuses. open → approved or open → rejected, applied exactly once.
const (
	StatusOpen     = "open"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

const (
	// predictionLimit is the exact batch size every member submits.
	predictionLimit = 5

	// maxNameLength truncates display names.
	maxNameLength = 24

	// codeAlphabet excludes visually ambiguous characters (I, O, 0, 1).
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	defaultAlgorithm = "AES-GCM"
)

var commitHashPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// Member is an identity within a party. IDs are supplied by clients and are
// stable across sessions; re-joining with the same id updates the name.
type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Prediction is a commit-reveal statement about another member. The server
// never sees the plaintext; ciphertext/iv are opaque client-side blobs.
type Prediction struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	TargetID    string    `json:"targetId"`
	Ciphertext  string    `json:"ciphertext"`
	IV          string    `json:"iv"`
	Algorithm   string    `json:"algorithm"`
	CommitHash  string    `json:"commitHash"`
	ClaimStatus string    `json:"claimStatus"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Vote is one member's judgment of an open claim.
type Vote struct {
	VoterID string    `json:"voterId"`
	Vote    string    `json:"vote"`
	VotedAt time.Time `json:"votedAt"`
}

// Claim is a revealed prediction under group judgment.
type Claim struct {
	ID           string     `json:"id"`
	PredictionID string     `json:"predictionId"`
	ClaimantID   string     `json:"claimantId"`
	RevealedText string     `json:"revealedText"`
	Salt         string     `json:"salt"`
	Verified     bool       `json:"verified"`
	Status       string     `json:"status"`
	Votes        []Vote     `json:"votes"`
	YesVotes     int        `json:"yesVotes"`
	NoVotes      int        `json:"noVotes"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt"`
}

// Party is the aggregate root. It exclusively owns its members, predictions,
// claims and votes; nothing inside is shared across parties. The embedded
// mutex serializes every read-modify-write of the aggregate: operations on
// one party are critical sections, operations on different parties are
// independent.
type Party struct {
	mu sync.Mutex

	ID          string          `json:"id"`
	Code        string          `json:"code"`
	CreatedAt   time.Time       `json:"createdAt"`
	Stage       string          `json:"stage"`
	ActivatedAt *time.Time      `json:"activatedAt"`
	Members     []Member        `json:"members"`
	SubmittedBy map[string]bool `json:"submittedBy"`
	Predictions []Prediction    `json:"predictions"`
	Claims      []Claim         `json:"claims"`
	Scores      map[string]int  `json:"scores"`
}

func (p *Party) member(id string) *Member {
	for i := range p.Members {
		if p.Members[i].ID == id {
			return &p.Members[i]
		}
	}
	return nil
}

func (p *Party) prediction(id string) *Prediction {
	for i := range p.Predictions {
		if p.Predictions[i].ID == id {
			return &p.Predictions[i]
		}
	}
	return nil
}

func (p *Party) claim(id string) *Claim {
	for i := range p.Claims {
		if p.Claims[i].ID == id {
			return &p.Claims[i]
		}
	}
	return nil
}

// hashCommit binds text and salt with the digest the clients use: sha256
// over the literal concatenation "text::salt", lowercase hex.
func hashCommit(text, salt string) string {
	sum := sha256.Sum256([]byte(text + "::" + salt))
	return hex.EncodeToString(sum[:])
}

// verifyCommit reports whether commitHash was produced from (text, salt).
func verifyCommit(text, salt, commitHash string) bool {
	return hashCommit(text, salt) == commitHash
}

func cleanName(name string) string {
	name = strings.TrimSpace(name)
	if runes := []rune(name); len(runes) > maxNameLength {
		name = string(runes[:maxNameLength])
	}
	return name
}

func createID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

// randomPartyCode draws a crypto-random 6-char code from the alphabet.
// Uniqueness against stored parties is the store's job.
func randomPartyCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, codeLength)
	for i := range out {
		out[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(out)
}
