package services

import (
	"context"

	"uplinkpolicy/internal/core/domain"

	"github.com/stretchr/testify/mock"
)

type MockMatchRecorder struct {
	mock.Mock
}

func (m *MockMatchRecorder) RecordMatch(policy string, result domain.MatchResult) {
	m.Called(policy, result)
}

func (m *MockMatchRecorder) RecordPolicyReplaced(policy string) {
	m.Called(policy)
}

func (m *MockMatchRecorder) RecordDecision(decision domain.Decision, changed bool) {
	m.Called(decision, changed)
}

func (m *MockMatchRecorder) RecordSenderLeft(session domain.SessionID, sender domain.SenderID) {
	m.Called(session, sender)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishPolicyReplaced(ctx context.Context, name string, version uint64) error {
	args := m.Called(ctx, name, version)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishPolicyDeleted(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}
