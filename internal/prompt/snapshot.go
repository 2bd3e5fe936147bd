package prompt

import (
	"fmt"
	"slices"
	"strings"

	"promptd/internal/trigger"
)

// Snapshot returns the state of every prompt, sorted by name.
func (s *Service) Snapshot() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.prompts))
	for _, st := range s.prompts {
		status := Status{
			Name:      st.def.Name,
			Windows:   st.def.Schedule.String(),
			Reference: st.reference,
			Pending:   len(st.pending),
			Watermark: st.watermark,
			LastFired: st.lastFired,
		}
		for _, a := range st.pending {
			if status.Next.IsZero() || a.tt.Trigger.Before(status.Next) {
				status.Next = a.tt.Trigger
			}
		}
		out = append(out, status)
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Preview resolves the next n triggers of a prompt from now without arming
// them. Range triggers use fresh jitter, so they differ from the armed ones.
func (s *Service) Preview(name string, n int) ([]trigger.TriggerTime, error) {
	s.mu.Lock()
	st, ok := s.prompts[name]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrompt, name)
	}
	def, ref, now, rng := st.def, st.reference, s.now().In(s.loc), s.newRand()
	s.mu.Unlock()

	out := make([]trigger.TriggerTime, 0, max(n, 0))
	for tt := range def.Schedule.TriggerTimes(ref, now, def.MaxAge, rng) {
		if len(out) >= n {
			break
		}
		out = append(out, tt)
	}
	return out, nil
}
