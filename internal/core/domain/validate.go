package domain

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

// ValidationIssue describes one problem with one row of a rule table.
type ValidationIssue struct {
	Row    int
	Reason string
}

func (v *ValidationIssue) Error() string {
	return fmt.Sprintf("row %d: %s", v.Row, v.Reason)
}

func (v *ValidationIssue) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// ValidateRules checks that a table is well formed for first-match evaluation.
// Rows must be ordered by participant ceiling, and within one participant
// ceiling by bitrate ceiling. The last row must be unbounded in both
// ceilings so the fallback is unreachable. All issues are returned together;
// use multierr.Errors to list them.
func ValidateRules(rules []Rule) error {
	if len(rules) == 0 {
		return fmt.Errorf("%w: table has no rules", ErrInvalidPolicy)
	}

	var err error
	for i, rule := range rules {
		err = multierr.Append(err, validateRow(i, rule))
		if i == 0 {
			continue
		}
		prev := rules[i-1]
		byParticipants := rule.maxParticipants.Compare(prev.maxParticipants)
		byBitrate := rule.maxBitrateKbps.Compare(prev.maxBitrateKbps)
		switch {
		case byParticipants < 0:
			err = multierr.Append(err, issue(i, "participant ceiling %s is below previous row's %s",
				rule.maxParticipants, prev.maxParticipants))
		case byParticipants == 0 && byBitrate < 0:
			err = multierr.Append(err, issue(i, "bitrate ceiling %s is below previous row's %s",
				rule.maxBitrateKbps, prev.maxBitrateKbps))
		case byParticipants == 0 && byBitrate == 0:
			err = multierr.Append(err, issue(i, "unreachable, same ceilings as row %d", i-1))
		}
	}

	last := rules[len(rules)-1]
	if !last.maxParticipants.IsUnbounded() || !last.maxBitrateKbps.IsUnbounded() {
		err = multierr.Append(err, issue(len(rules)-1,
			"last row must have unbounded participant and bitrate ceilings"))
	}
	return err
}

func validateRow(i int, rule Rule) error {
	var err error
	if limit, ok := rule.maxParticipants.Limit(); ok && limit < 0 {
		err = multierr.Append(err, issue(i, "negative participant ceiling %d", limit))
	}
	if limit, ok := rule.maxBitrateKbps.Limit(); ok && limit < 0 {
		err = multierr.Append(err, issue(i, "negative bitrate ceiling %d", limit))
	}
	t := rule.tiers
	if t.LowKbps < 0 || t.MediumKbps < 0 || t.HighKbps < 0 {
		err = multierr.Append(err, issue(i, "negative tier bitrate %s", t))
	}
	if rule.ActiveStreams() == ActiveStreamsNone {
		err = multierr.Append(err, issue(i, "tiers %s are not a supported stream combination", t))
	}
	return err
}

func issue(row int, format string, args ...interface{}) error {
	return &ValidationIssue{Row: row, Reason: fmt.Sprintf(format, args...)}
}

// ValidationIssues flattens err into its row issues. Errors that are not
// row issues are returned with Row -1.
func ValidationIssues(err error) []*ValidationIssue {
	var issues []*ValidationIssue
	for _, e := range multierr.Errors(err) {
		var vi *ValidationIssue
		if errors.As(e, &vi) {
			issues = append(issues, vi)
			continue
		}
		issues = append(issues, &ValidationIssue{Row: -1, Reason: e.Error()})
	}
	return issues
}
