package entitlement

import (
	"context"
	"io"
	"log/slog"

	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/entitlement-service/internal/models"
	"github.com/magabrotheeeer/entitlement-service/internal/paymentprovider"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type RoleStoreMock struct{ mock.Mock }

func (m *RoleStoreMock) ListPremiumRoles(ctx context.Context, userUID string) ([]models.Role, error) {
	args := m.Called(ctx, userUID)
	if r := args.Get(0); r != nil {
		return r.([]models.Role), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *RoleStoreMock) UpsertRole(ctx context.Context, userUID string, role models.Role) error {
	args := m.Called(ctx, userUID, role)
	return args.Error(0)
}

func (m *RoleStoreMock) DeleteRole(ctx context.Context, userUID string, role models.Role) (int64, error) {
	args := m.Called(ctx, userUID, role)
	return args.Get(0).(int64), args.Error(1)
}

type SubscriptionStoreMock struct{ mock.Mock }

func (m *SubscriptionStoreMock) UpsertSubscription(ctx context.Context, rec models.SubscriptionRecord) (bool, error) {
	args := m.Called(ctx, rec)
	return args.Bool(0), args.Error(1)
}

func (m *SubscriptionStoreMock) HasSubscription(ctx context.Context, userUID string) (bool, error) {
	args := m.Called(ctx, userUID)
	return args.Bool(0), args.Error(1)
}

func (m *SubscriptionStoreMock) UpdateSubscriptionStatus(ctx context.Context, subID, status string) (bool, error) {
	args := m.Called(ctx, subID, status)
	return args.Bool(0), args.Error(1)
}

type ProcessorMock struct{ mock.Mock }

func (m *ProcessorMock) Configured() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *ProcessorMock) FindCustomerByEmail(ctx context.Context, email string) (string, bool, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *ProcessorMock) FindActiveSubscription(ctx context.Context, customerID string) (*paymentprovider.Subscription, bool, error) {
	args := m.Called(ctx, customerID)
	if s := args.Get(0); s != nil {
		return s.(*paymentprovider.Subscription), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

type SnapshotStoreMock struct{ mock.Mock }

func (m *SnapshotStoreMock) GetSnapshot(ctx context.Context, userUID string) (models.Status, bool, error) {
	args := m.Called(ctx, userUID)
	return args.Get(0).(models.Status), args.Bool(1), args.Error(2)
}

func (m *SnapshotStoreMock) SaveSnapshot(ctx context.Context, userUID string, status models.Status) error {
	args := m.Called(ctx, userUID, status)
	return args.Error(0)
}

func (m *SnapshotStoreMock) InvalidateSnapshot(ctx context.Context, userUID string) error {
	args := m.Called(ctx, userUID)
	return args.Error(0)
}

type TrackerMock struct{ mock.Mock }

func (m *TrackerMock) Track(name, userUID string, props map[string]any) {
	m.Called(name, userUID, props)
}

type deps struct {
	roles     *RoleStoreMock
	subs      *SubscriptionStoreMock
	processor *ProcessorMock
	snapshots *SnapshotStoreMock
	tracker   *TrackerMock
}

func newService() (*Service, *deps) {
	d := &deps{
		roles:     new(RoleStoreMock),
		subs:      new(SubscriptionStoreMock),
		processor: new(ProcessorMock),
		snapshots: new(SnapshotStoreMock),
		tracker:   new(TrackerMock),
	}
	return New(newNoopLogger(), d.roles, d.subs, d.processor, d.snapshots, d.tracker), d
}

func (d *deps) assertAll(t mock.TestingT) {
	d.roles.AssertExpectations(t)
	d.subs.AssertExpectations(t)
	d.processor.AssertExpectations(t)
	d.snapshots.AssertExpectations(t)
}
