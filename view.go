/*
Copyright © 2026 iknowur contributors
*/

package main

import "time"

// Viewer projection: the read-side shape of a party, redacted per
// requesting member. Commit payloads (ciphertext, iv, algorithm, hash) are
// visible only to their author; claim text is public once revealed, and
// scores and submission status are visible to every member. A pure
// transform, nothing here mutates stored state.

type MemberView struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	JoinedAt             time.Time `json:"joinedAt"`
	SubmittedPredictions bool      `json:"submittedPredictions"`
	Score                int       `json:"score"`
}

type PredictionView struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"authorId"`
	AuthorName  string    `json:"authorName"`
	TargetID    string    `json:"targetId"`
	TargetName  string    `json:"targetName"`
	ClaimStatus string    `json:"claimStatus"`
	CreatedAt   time.Time `json:"createdAt"`

	// Commit payload, present only when the viewer is the author.
	Ciphertext string `json:"ciphertext,omitempty"`
	IV         string `json:"iv,omitempty"`
	Algorithm  string `json:"algorithm,omitempty"`
	CommitHash string `json:"commitHash,omitempty"`
}

type VoteView struct {
	VoterID   string `json:"voterId"`
	VoterName string `json:"voterName"`
	Vote      string `json:"vote"`
}

type ClaimView struct {
	ID                   string     `json:"id"`
	PredictionID         string     `json:"predictionId"`
	PredictionTargetID   string     `json:"predictionTargetId"`
	PredictionTargetName string     `json:"predictionTargetName"`
	ClaimantID           string     `json:"claimantId"`
	ClaimantName         string     `json:"claimantName"`
	Status               string     `json:"status"`
	RevealedText         string     `json:"revealedText"`
	YesVotes             int        `json:"yesVotes"`
	NoVotes              int        `json:"noVotes"`
	Votes                []VoteView `json:"votes"`
	CreatedAt            time.Time  `json:"createdAt"`
	ResolvedAt           *time.Time `json:"resolvedAt"`
}

type PartyView struct {
	ID              string           `json:"id"`
	Code            string           `json:"code"`
	Stage           string           `json:"stage"`
	CreatedAt       time.Time        `json:"createdAt"`
	ActivatedAt     *time.Time       `json:"activatedAt"`
	PredictionLimit int              `json:"predictionLimit"`
	Members         []MemberView     `json:"members"`
	Predictions     []PredictionView `json:"predictions"`
	Claims          []ClaimView      `json:"claims"`
}

// projectForViewer builds the redacted read model. Caller holds the party
// lock.
func projectForViewer(p *Party, viewerID string) *PartyView {
	nameOf := func(memberID string) string {
		if m := p.member(memberID); m != nil {
			return m.Name
		}
		return "Unknown"
	}

	members := make([]MemberView, 0, len(p.Members))
	for _, m := range p.Members {
		members = append(members, MemberView{
			ID:                   m.ID,
			Name:                 m.Name,
			JoinedAt:             m.JoinedAt,
			SubmittedPredictions: p.SubmittedBy[m.ID],
			Score:                p.Scores[m.ID],
		})
	}

	predictions := make([]PredictionView, 0, len(p.Predictions))
	for _, pred := range p.Predictions {
		pv := PredictionView{
			ID:          pred.ID,
			AuthorID:    pred.AuthorID,
			AuthorName:  nameOf(pred.AuthorID),
			TargetID:    pred.TargetID,
			TargetName:  nameOf(pred.TargetID),
			ClaimStatus: pred.ClaimStatus,
			CreatedAt:   pred.CreatedAt,
		}

		if pred.AuthorID == viewerID {
			pv.Ciphertext = pred.Ciphertext
			pv.IV = pred.IV
			pv.Algorithm = pred.Algorithm
			pv.CommitHash = pred.CommitHash
		}

		predictions = append(predictions, pv)
	}

	claims := make([]ClaimView, 0, len(p.Claims))
	for _, c := range p.Claims {
		cv := ClaimView{
			ID:           c.ID,
			PredictionID: c.PredictionID,
			ClaimantID:   c.ClaimantID,
			ClaimantName: nameOf(c.ClaimantID),
			Status:       c.Status,
			RevealedText: c.RevealedText,
			YesVotes:     c.YesVotes,
			NoVotes:      c.NoVotes,
			Votes:        make([]VoteView, 0, len(c.Votes)),
			CreatedAt:    c.CreatedAt,
			ResolvedAt:   c.ResolvedAt,
		}

		if pred := p.prediction(c.PredictionID); pred != nil {
			cv.PredictionTargetID = pred.TargetID
			cv.PredictionTargetName = nameOf(pred.TargetID)
		} else {
			cv.PredictionTargetName = "Unknown"
		}

		for _, v := range c.Votes {
			cv.Votes = append(cv.Votes, VoteView{
				VoterID:   v.VoterID,
				VoterName: nameOf(v.VoterID),
				Vote:      v.Vote,
			})
		}

		claims = append(claims, cv)
	}

	return &PartyView{
		ID:              p.ID,
		Code:            p.Code,
		Stage:           p.Stage,
		CreatedAt:       p.CreatedAt,
		ActivatedAt:     p.ActivatedAt,
		PredictionLimit: predictionLimit,
		Members:         members,
		Predictions:     predictions,
		Claims:          claims,
	}
}
