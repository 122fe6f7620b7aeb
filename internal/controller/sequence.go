// Package controller holds the per-user page logic: the task board a student
// works through and the leaderboard view. Controllers own their state, call
// services, and turn failures into the strings shown on the page.
package controller

import (
	"sync/atomic"

	"github.com/sakif/mentorflow/internal/apperror"
)

// Sequence tags fetches so that only the newest one may write state.
//
//	ticket := seq.Next()
//	data, err := fetch(ctx)
//	if !seq.Current(ticket) { return } // a newer fetch started meanwhile
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 { return s.n.Add(1) }

func (s *Sequence) Current(ticket uint64) bool { return s.n.Load() == ticket }

// errorText renders err for the page.
func errorText(err error) string {
	return apperror.Friendly(err, "Something went wrong. Please try again.")
}
