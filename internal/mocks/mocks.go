// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/autoapply/api/schemas"
	"github.com/xkilldash9x/autoapply/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	return m.Called().Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	return m.Called().Get(0).(config.NetworkConfig)
}

func (m *MockConfig) Target() config.TargetConfig {
	return m.Called().Get(0).(config.TargetConfig)
}

func (m *MockConfig) Auth() config.AuthConfig {
	return m.Called().Get(0).(config.AuthConfig)
}

func (m *MockConfig) Labels() config.LabelsConfig {
	return m.Called().Get(0).(config.LabelsConfig)
}

func (m *MockConfig) Workflow() config.WorkflowConfig {
	return m.Called().Get(0).(config.WorkflowConfig)
}

func (m *MockConfig) Reveal() config.RevealConfig {
	return m.Called().Get(0).(config.RevealConfig)
}

func (m *MockConfig) Run() config.RunConfig {
	return m.Called().Get(0).(config.RunConfig)
}

func (m *MockConfig) Humanoid() config.HumanoidConfig {
	return m.Called().Get(0).(config.HumanoidConfig)
}

func (m *MockConfig) Artifacts() config.ArtifactsConfig {
	return m.Called().Get(0).(config.ArtifactsConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	return m.Called().Get(0).(config.ReportConfig)
}

// --- Setters ---

func (m *MockConfig) SetBrowserHeadless(b bool)            { m.Called(b) }
func (m *MockConfig) SetTargetOrigin(s string)             { m.Called(s) }
func (m *MockConfig) SetTargetSurfaceURL(s string)         { m.Called(s) }
func (m *MockConfig) SetAuthCookiesFile(s string)          { m.Called(s) }
func (m *MockConfig) SetRunQuota(q int)                    { m.Called(q) }
func (m *MockConfig) SetRunScanMode(mode schemas.ScanMode) { m.Called(mode) }
func (m *MockConfig) SetReportFormat(s string)             { m.Called(s) }
func (m *MockConfig) SetReportOutput(s string)             { m.Called(s) }

// -- Session Context Mock --

// MockSessionContext implements the schemas.SessionContext interface for testing.
type MockSessionContext struct {
	mock.Mock
	mutex    sync.Mutex
	sleptFor time.Duration
}

var _ schemas.SessionContext = (*MockSessionContext)(nil)

func NewMockSessionContext() *MockSessionContext {
	return &MockSessionContext{}
}

// SleptFor returns the total duration passed to Sleep.
func (m *MockSessionContext) SleptFor() time.Duration {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.sleptFor
}

func (m *MockSessionContext) ID() string                      { return m.Called().String(0) }
func (m *MockSessionContext) Close(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *MockSessionContext) Navigate(ctx context.Context, url string, wait schemas.WaitCondition) error {
	return m.Called(ctx, url, wait).Error(0)
}
func (m *MockSessionContext) SetCookies(ctx context.Context, cookies []schemas.Cookie) error {
	return m.Called(ctx, cookies).Error(0)
}
func (m *MockSessionContext) QueryCandidates(ctx context.Context) ([]schemas.Candidate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Candidate), args.Error(1)
}
func (m *MockSessionContext) Click(ctx context.Context, handle string) error {
	return m.Called(ctx, handle).Error(0)
}
func (m *MockSessionContext) PressKey(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}
func (m *MockSessionContext) ScrollBy(ctx context.Context, viewportFraction float64) error {
	return m.Called(ctx, viewportFraction).Error(0)
}
func (m *MockSessionContext) ContentExtent(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockSessionContext) BodyText(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockSessionContext) Fingerprint(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
func (m *MockSessionContext) Snapshot(ctx context.Context) (*schemas.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.Snapshot), args.Error(1)
}
func (m *MockSessionContext) Sleep(ctx context.Context, d time.Duration) error {
	m.mutex.Lock()
	m.sleptFor += d
	m.mutex.Unlock()
	return m.Called(ctx, d).Error(0)
}

// -- Summary Sink Mock --

// MockSink mocks a run summary sink.
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Name() string { return m.Called().String(0) }
func (m *MockSink) Emit(ctx context.Context, summary *schemas.RunSummary) error {
	return m.Called(ctx, summary).Error(0)
}
