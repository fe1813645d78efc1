package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"

	"go.uber.org/zap"
)

const defaultHistorySize = 100

// UplinkService turns uplink estimates into simulcast decisions per sender.
// It tracks which senders are in which session so the participant count can
// be derived when the estimator does not supply one.
type UplinkService struct {
	policies ports.PolicyService
	recorder ports.MatchRecorder
	logger   *zap.SugaredLogger

	mu            sync.RWMutex
	sessions      map[domain.SessionID]map[domain.SenderID]struct{}
	sessionPolicy map[domain.SessionID]string
	senders       map[domain.SenderID]*senderState
	defaultPolicy string

	// Configuration
	minTimeBetweenSwitches time.Duration
	historySize            int

	now func() time.Time
}

type senderState struct {
	session     domain.SessionID
	current     domain.Decision
	hasDecision bool
	lastSwitch  time.Time
	history     []domain.Decision
}

func NewUplinkService(
	policies ports.PolicyService,
	recorder ports.MatchRecorder,
	logger *zap.SugaredLogger,
) *UplinkService {
	return &UplinkService{
		policies:      policies,
		recorder:      recorder,
		logger:        logger,
		sessions:      make(map[domain.SessionID]map[domain.SenderID]struct{}),
		sessionPolicy: make(map[domain.SessionID]string),
		senders:       make(map[domain.SenderID]*senderState),
		defaultPolicy: domain.DefaultPolicyName,
		historySize:   defaultHistorySize,
		now:           time.Now,
	}
}

// SetMinTimeBetweenSwitches holds a decision for at least d before a
// different one replaces it. Zero applies every change immediately.
func (u *UplinkService) SetMinTimeBetweenSwitches(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if d < 0 {
		d = 0
	}
	u.minTimeBetweenSwitches = d
}

func (u *UplinkService) SetHistorySize(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if n <= 0 {
		n = defaultHistorySize
	}
	u.historySize = n
}

func (u *UplinkService) SetDefaultPolicy(name string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.defaultPolicy = name
}

// SetSessionPolicy makes every sender in session use the named policy.
// An empty name reverts the session to the default policy.
func (u *UplinkService) SetSessionPolicy(session domain.SessionID, policy string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if policy == "" {
		delete(u.sessionPolicy, session)
		return
	}
	u.sessionPolicy[session] = policy
}

func (u *UplinkService) Join(session domain.SessionID, sender domain.SenderID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.joinLocked(session, sender)
}

func (u *UplinkService) joinLocked(session domain.SessionID, sender domain.SenderID) {
	members, ok := u.sessions[session]
	if !ok {
		members = make(map[domain.SenderID]struct{})
		u.sessions[session] = members
	}
	members[sender] = struct{}{}

	if state, ok := u.senders[sender]; ok {
		if state.session != session {
			u.removeFromSessionLocked(state.session, sender)
			state.session = session
		}
		return
	}
	u.senders[sender] = &senderState{session: session}
	u.logger.Debugw("sender joined", "session_id", session, "sender_id", sender)
}

func (u *UplinkService) Leave(session domain.SessionID, sender domain.SenderID) {
	u.mu.Lock()
	state, ok := u.senders[sender]
	if ok && state.session == session {
		delete(u.senders, sender)
	}
	u.removeFromSessionLocked(session, sender)
	u.mu.Unlock()

	if u.recorder != nil {
		u.recorder.RecordSenderLeft(session, sender)
	}
	u.logger.Debugw("sender left", "session_id", session, "sender_id", sender)
}

func (u *UplinkService) removeFromSessionLocked(session domain.SessionID, sender domain.SenderID) {
	members, ok := u.sessions[session]
	if !ok {
		return
	}
	delete(members, sender)
	if len(members) == 0 {
		delete(u.sessions, session)
		delete(u.sessionPolicy, session)
	}
}

// SessionSize is the number of senders currently joined to session.
func (u *UplinkService) SessionSize(session domain.SessionID) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.sessions[session])
}

// Report selects a decision for the estimate and applies it when it differs
// from the sender's current one. It returns the sender's current decision
// and whether this report changed it.
func (u *UplinkService) Report(ctx context.Context, report domain.UplinkReport) (domain.Decision, bool, error) {
	if report.Sender == "" {
		return domain.Decision{}, false, fmt.Errorf("uplink report without sender")
	}

	u.mu.Lock()
	u.joinLocked(report.Session, report.Sender)
	participants := report.Participants
	if participants <= 0 {
		participants = len(u.sessions[report.Session])
	}
	policyName := u.defaultPolicy
	if name, ok := u.sessionPolicy[report.Session]; ok {
		policyName = name
	}
	u.mu.Unlock()

	result, err := u.policies.Match(ctx, policyName, participants, report.UplinkKbps)
	if err != nil {
		return domain.Decision{}, false, fmt.Errorf("failed to match policy %s: %w", policyName, err)
	}

	candidate := domain.Decision{
		Session:       report.Session,
		Sender:        report.Sender,
		Policy:        policyName,
		Participants:  participants,
		UplinkKbps:    report.UplinkKbps,
		Tiers:         result.Rule.Tiers(),
		ActiveStreams: result.ActiveStreams(),
		RuleIndex:     result.Index,
		Fallback:      result.Fallback,
		DecidedAt:     u.now(),
	}

	if candidate.ActiveStreams == domain.ActiveStreamsNone {
		u.logger.Warnw("policy rule enables no supported stream combination",
			"policy", policyName,
			"rule", result.Describe(),
			"sender_id", report.Sender,
		)
	}

	decision, changed := u.apply(candidate)

	if changed {
		u.logger.Infow("uplink decision changed",
			"session_id", decision.Session,
			"sender_id", decision.Sender,
			"participants", decision.Participants,
			"uplink_kbps", decision.UplinkKbps,
			"active_streams", decision.ActiveStreams.String(),
			"tiers", decision.Tiers.String(),
			"rule_index", decision.RuleIndex,
			"fallback", decision.Fallback,
		)
	}
	if u.recorder != nil {
		u.recorder.RecordDecision(decision, changed)
	}
	return decision, changed, nil
}

func (u *UplinkService) apply(candidate domain.Decision) (domain.Decision, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	state, ok := u.senders[candidate.Sender]
	if !ok {
		// Left while the policy was being matched.
		return candidate, false
	}

	if state.hasDecision {
		if state.current.SameTiers(candidate) {
			return state.current, false
		}
		if candidate.DecidedAt.Sub(state.lastSwitch) < u.minTimeBetweenSwitches {
			return state.current, false
		}
	}

	state.current = candidate
	state.hasDecision = true
	state.lastSwitch = candidate.DecidedAt
	state.history = append(state.history, candidate)
	if len(state.history) > u.historySize {
		state.history = state.history[len(state.history)-u.historySize:]
	}
	return candidate, true
}

func (u *UplinkService) CurrentDecision(sender domain.SenderID) (domain.Decision, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	state, ok := u.senders[sender]
	if !ok || !state.hasDecision {
		return domain.Decision{}, domain.ErrSenderNotFound
	}
	return state.current, nil
}

// History returns the decisions applied to sender, oldest first.
func (u *UplinkService) History(sender domain.SenderID) []domain.Decision {
	u.mu.RLock()
	defer u.mu.RUnlock()

	state, ok := u.senders[sender]
	if !ok {
		return nil
	}
	history := make([]domain.Decision, len(state.history))
	copy(history, state.history)
	return history
}

var _ ports.UplinkService = (*UplinkService)(nil)
