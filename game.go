/*
Copyright © 2026 iknowur contributors
*/

package main

import (
	"strings"
	"time"
)

// PredictionEntry is one item of an incoming prediction batch. Ciphertext
// and iv are opaque blobs produced client-side; the server stores and
// forwards them without inspection.
type PredictionEntry struct {
	TargetID   string `json:"targetId"`
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Algorithm  string `json:"algorithm"`
	CommitHash string `json:"commitHash"`
}

// PredictionRef lets the submitting client correlate local drafts with
// server-assigned ids. No plaintext, no commit data.
type PredictionRef struct {
	ID       string `json:"id"`
	TargetID string `json:"targetId"`
}

// VoteOutcome reports the claim's state right after a vote, so clients can
// render without waiting for the change notification.
type VoteOutcome struct {
	Status   string `json:"status"`
	YesVotes int    `json:"yesVotes"`
	NoVotes  int    `json:"noVotes"`
}

// CreateParty creates a party with the creator as sole member, stage
// collecting, score zero.
func (s *Store) CreateParty(playerID, name string) (*PartyView, error) {
	now := time.Now()
	p := &Party{
		ID:          createID("party"),
		CreatedAt:   now,
		Stage:       StageCollecting,
		Members:     []Member{{ID: playerID, Name: cleanName(name), JoinedAt: now}},
		SubmittedBy: make(map[string]bool),
		Predictions: []Prediction{},
		Claims:      []Claim{},
		Scores:      map[string]int{playerID: 0},
	}

	s.add(p)
	s.afterChange(p.ID)

	logf(s.cfg, "PARTY: Created party %s (%s)", p.ID, p.Code)

	p.mu.Lock()
	defer p.mu.Unlock()

	return projectForViewer(p, playerID), nil
}

// JoinParty admits a member by join code. Re-joining with a known member id
// updates the display name idempotently instead of duplicating.
func (s *Store) JoinParty(code, playerID, name string) (*PartyView, error) {
	p := s.byCode(code)
	if p == nil {
		return nil, gameErr(CodeNotFound, "party not found")
	}

	p.mu.Lock()

	if p.Stage != StageCollecting {
		p.mu.Unlock()
		return nil, gameErr(CodeStageLocked, "party already active. joining is locked")
	}

	clean := cleanName(name)
	if m := p.member(playerID); m != nil {
		m.Name = clean
	} else {
		p.Members = append(p.Members, Member{ID: playerID, Name: clean, JoinedAt: time.Now()})
		if _, ok := p.Scores[playerID]; !ok {
			p.Scores[playerID] = 0
		}
		logf(s.cfg, "PARTY: Player %q joined %s", clean, p.Code)
	}

	view := projectForViewer(p, playerID)
	p.mu.Unlock()

	s.afterChange(p.ID)

	return view, nil
}

// GetParty is the pure read: the authoritative, re-fetchable party state,
// projected for the requesting member.
func (s *Store) GetParty(partyID, viewerID string) (*PartyView, error) {
	p := s.get(partyID)
	if p == nil {
		return nil, gameErr(CodeNotFound, "party not found")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if viewerID == "" || p.member(viewerID) == nil {
		return nil, gameErr(CodeForbidden, "only party members can access this party")
	}

	return projectForViewer(p, viewerID), nil
}

// SubmitPredictions validates and records a member's one and only batch of
// five predictions, atomically: any entry failing aborts the whole batch
// with no partial writes.
func (s *Store) SubmitPredictions(partyID, playerID string, batch []PredictionEntry) ([]PredictionRef, *PartyView, error) {
	p := s.get(partyID)
	if p == nil {
		return nil, nil, gameErr(CodeNotFound, "party not found")
	}

	p.mu.Lock()

	if err := func() error {
		if p.Stage != StageCollecting {
			return gameErr(CodeSubmissionClosed, "prediction submission is closed")
		}
		if p.member(playerID) == nil {
			return gameErr(CodeForbidden, "only party members can submit predictions")
		}
		if p.SubmittedBy[playerID] {
			return gameErr(CodeAlreadySubmitted, "already submitted")
		}
		if len(batch) != predictionLimit {
			return gameErr(CodeInvalidBatchSize, "exactly 5 predictions are required")
		}
		return nil
	}(); err != nil {
		p.mu.Unlock()
		return nil, nil, err
	}

	now := time.Now()
	created := make([]Prediction, 0, predictionLimit)

	for _, entry := range batch {
		if entry.TargetID == "" || p.member(entry.TargetID) == nil {
			p.mu.Unlock()
			return nil, nil, gameErr(CodeInvalidTarget, "invalid targetId: "+entry.TargetID)
		}
		if entry.TargetID == playerID {
			p.mu.Unlock()
			return nil, nil, gameErr(CodeSelfTargetNotAllowed, "self-target prediction is not allowed")
		}
		if !commitHashPattern.MatchString(strings.ToLower(entry.CommitHash)) {
			p.mu.Unlock()
			return nil, nil, gameErr(CodeInvalidCommitFormat, "commitHash must be 64-char sha256 hex")
		}
		if entry.Ciphertext == "" || entry.IV == "" {
			p.mu.Unlock()
			return nil, nil, gameErr(CodeInvalidBatchSize, "each prediction requires ciphertext and iv")
		}

		algorithm := entry.Algorithm
		if algorithm == "" {
			algorithm = defaultAlgorithm
		}

		created = append(created, Prediction{
			ID:          createID("pred"),
			AuthorID:    playerID,
			TargetID:    entry.TargetID,
			Ciphertext:  entry.Ciphertext,
			IV:          entry.IV,
			Algorithm:   algorithm,
			CommitHash:  strings.ToLower(entry.CommitHash),
			ClaimStatus: ClaimAvailable,
			CreatedAt:   now,
		})
	}

	p.Predictions = append(p.Predictions, created...)
	p.SubmittedBy[playerID] = true
	advanceStageIfReady(p)

	refs := make([]PredictionRef, 0, len(created))
	for _, pred := range created {
		refs = append(refs, PredictionRef{ID: pred.ID, TargetID: pred.TargetID})
	}

	view := projectForViewer(p, playerID)
	stage := p.Stage
	p.mu.Unlock()

	s.afterChange(p.ID)

	logf(s.cfg, "PARTY: Player %s submitted predictions to %s (stage now %s)", playerID, p.Code, stage)

	return refs, view, nil
}

// CreateClaim reveals one of the claimant's own predictions for judgment.
// The commit hash is recomputed from the revealed text and salt exactly
// once, here; a mismatch creates nothing.
func (s *Store) CreateClaim(partyID, playerID, predictionID, revealedText, salt string) (string, *PartyView, error) {
	p := s.get(partyID)
	if p == nil {
		return "", nil, gameErr(CodeNotFound, "party not found")
	}

	p.mu.Lock()

	if err := func() error {
		if p.Stage != StageActive {
			return gameErr(CodeNotActiveYet, "party is not active yet")
		}
		if p.member(playerID) == nil {
			return gameErr(CodeForbidden, "only party members can create claims")
		}
		pred := p.prediction(predictionID)
		if pred == nil {
			return gameErr(CodeNotFound, "prediction not found")
		}
		if pred.AuthorID != playerID {
			return gameErr(CodeNotAuthor, "only prediction author can claim")
		}
		if pred.ClaimStatus != ClaimAvailable {
			return gameErr(CodeAlreadyUsed, "prediction already used")
		}
		if !verifyCommit(revealedText, salt, pred.CommitHash) {
			return gameErr(CodeCommitMismatch, "commit verification failed")
		}
		return nil
	}(); err != nil {
		p.mu.Unlock()
		return "", nil, err
	}

	pred := p.prediction(predictionID)

	claim := Claim{
		ID:           createID("claim"),
		PredictionID: pred.ID,
		ClaimantID:   playerID,
		RevealedText: strings.TrimSpace(revealedText),
		Salt:         salt,
		Verified:     true,
		Status:       StatusOpen,
		Votes:        []Vote{},
		CreatedAt:    time.Now(),
	}

	p.Claims = append(p.Claims, claim)
	pred.ClaimStatus = ClaimPending

	view := projectForViewer(p, playerID)
	p.mu.Unlock()

	s.afterChange(p.ID)

	logf(s.cfg, "PARTY: Player %s opened claim %s in %s", playerID, claim.ID, p.Code)

	return claim.ID, view, nil
}

// CastVote records one member's judgment of an open claim, then runs
// finalization.
func (s *Store) CastVote(partyID, claimID, playerID, vote string) (*VoteOutcome, *PartyView, error) {
	p := s.get(partyID)
	if p == nil {
		return nil, nil, gameErr(CodeNotFound, "party not found")
	}

	p.mu.Lock()

	if err := func() error {
		if p.member(playerID) == nil {
			return gameErr(CodeForbidden, "only party members can vote")
		}
		claim := p.claim(claimID)
		if claim == nil {
			return gameErr(CodeNotFound, "claim not found")
		}
		if claim.Status != StatusOpen {
			return gameErr(CodeAlreadyFinalized, "claim is already finalized")
		}
		if claim.ClaimantID == playerID {
			return gameErr(CodeClaimantCannotVote, "claimant cannot vote on their own claim")
		}
		if vote != "yes" && vote != "no" {
			return gameErr(CodeInvalidVote, "vote must be yes or no")
		}
		for _, v := range claim.Votes {
			if v.VoterID == playerID {
				return gameErr(CodeDuplicateVote, "already voted")
			}
		}
		return nil
	}(); err != nil {
		p.mu.Unlock()
		return nil, nil, err
	}

	claim := p.claim(claimID)
	claim.Votes = append(claim.Votes, Vote{VoterID: playerID, Vote: vote, VotedAt: time.Now()})
	maybeFinalizeClaim(p, claim)

	outcome := &VoteOutcome{Status: claim.Status, YesVotes: claim.YesVotes, NoVotes: claim.NoVotes}
	view := projectForViewer(p, playerID)
	p.mu.Unlock()

	s.afterChange(p.ID)

	return outcome, view, nil
}

// advanceStageIfReady flips collecting → active once at least two members
// exist and every member has submitted. Idempotent and side-effect-free
// otherwise; the stage never moves backwards. Caller holds the party lock.
func advanceStageIfReady(p *Party) {
	if p.Stage != StageCollecting {
		return
	}
	if len(p.Members) < 2 {
		return
	}

	for _, m := range p.Members {
		if !p.SubmittedBy[m.ID] {
			return
		}
	}

	now := time.Now()
	p.Stage = StageActive
	p.ActivatedAt = &now
}

func voteSummary(c *Claim) (yes, no int) {
	for _, v := range c.Votes {
		switch v.Vote {
		case "yes":
			yes++
		case "no":
			no++
		}
	}
	return yes, no
}

// maybeFinalizeClaim resolves an open claim once the tally is decisive.
// Majority is strict over the eligible voters (everyone but the claimant):
// enough yes-votes approve immediately, enough no-votes reject immediately,
// and a full round of voting without a yes-majority also rejects. The open
// check guards the single transition out, so scores adjust exactly once.
// Caller holds the party lock.
func maybeFinalizeClaim(p *Party, c *Claim) {
	if c.Status != StatusOpen {
		return
	}

	pred := p.prediction(c.PredictionID)
	if pred == nil {
		return
	}

	yes, no := voteSummary(c)
	c.YesVotes = yes
	c.NoVotes = no

	eligible := len(p.Members) - 1
	if eligible < 1 {
		return
	}
	majority := eligible/2 + 1

	if yes >= majority {
		now := time.Now()
		c.Status = StatusApproved
		c.ResolvedAt = &now
		pred.ClaimStatus = ClaimScored
		p.Scores[c.ClaimantID]++
		return
	}

	if no >= majority || len(c.Votes) >= eligible {
		now := time.Now()
		c.Status = StatusRejected
		c.ResolvedAt = &now
		pred.ClaimStatus = ClaimRejected
		p.Scores[c.ClaimantID]--
	}
}
