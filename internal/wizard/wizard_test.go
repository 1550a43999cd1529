package wizard_test

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idverify/internal/audit"
	auditmocks "idverify/internal/audit/mocks"
	"idverify/internal/platform/metrics"
	"idverify/internal/storage"
	"idverify/internal/wizard"
	"idverify/internal/wizard/media"
	"idverify/internal/wizard/panels"
	panelmocks "idverify/internal/wizard/panels/mocks"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	"idverify/internal/wizard/verification"
	"idverify/internal/wizard/verifiedname"
	dErrors "idverify/pkg/domain-errors"
	id "idverify/pkg/domain"
	"idverify/pkg/requestcontext"
	"idverify/pkg/testutil"
)

const base = "/id-verification"

func path(s steps.Step) string { return base + "/" + s.Slug() }

type WizardSuite struct {
	suite.Suite
	ctx       context.Context
	store     *storage.InMemoryStore
	metrics   *metrics.Metrics
	submitter *panelmocks.MockSubmitter
	wizard    *wizard.Wizard
	sessionID id.BrowserSessionID
}

func TestWizardSuite(t *testing.T) {
	suite.Run(t, new(WizardSuite))
}

func newWizard(t *testing.T, store storage.Store, m *metrics.Metrics, submitter panels.Submitter, opts ...wizard.Option) *wizard.Wizard {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := router.New(base, panels.Table(panels.Deps{
		Store:     store,
		Submitter: submitter,
		Logger:    logger,
		Metrics:   m,
	}))
	require.NoError(t, err)
	opts = append([]wizard.Option{wizard.WithLogger(logger), wizard.WithMetrics(m)}, opts...)
	return wizard.New(r, store, opts...)
}

func (s *WizardSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewInMemory(time.Hour)
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.submitter = panelmocks.NewMockSubmitter(gomock.NewController(s.T()))
	s.wizard = newWizard(s.T(), s.store, s.metrics, s.submitter)
	s.sessionID = id.NewBrowserSessionID()
}

func (s *WizardSuite) outlet(m *wizard.Mount) router.View {
	v, ok, err := m.Outlet(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)
	return v
}

func (s *WizardSuite) TestEveryMountStartsAtReviewRequirements() {
	for _, s2 := range steps.All() {
		m := s.wizard.Mount(s.ctx, s.sessionID, path(s2), "")
		s.Equal(path(steps.ReviewRequirements), m.Path(), "mounted at %s", s2)
		s.Equal(steps.ReviewRequirements, s.outlet(m).Step)
		s.Equal(s2 != steps.ReviewRequirements, m.Redirected())
	}
	for _, other := range []string{base, base + "/", base + "/no-such-step"} {
		m := s.wizard.Mount(s.ctx, s.sessionID, other, "")
		s.True(m.Redirected())
		s.Equal(steps.ReviewRequirements, s.outlet(m).Step)
	}
}

func (s *WizardSuite) TestMountAtSummaryIsRedirected() {
	testutil.Given(s.T(), "a full page load of the summary step", func(t *testing.T) {
		m := s.wizard.Mount(s.ctx, s.sessionID, path(steps.Summary), "")

		testutil.Then(t, "the mount owes a redirect to the first step", func(t *testing.T) {
			assert.True(t, m.Redirected())
			assert.Equal(t, path(steps.ReviewRequirements), m.Path())
		})
		testutil.And(t, "the summary panel never renders", func(t *testing.T) {
			v, ok, err := m.Outlet(s.ctx)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, steps.ReviewRequirements, v.Step)
			assert.Zero(t, promtest.ToFloat64(s.metrics.StepRendersTotal.WithLabelValues("summary")))
		})
		testutil.When(t, "the browser follows the redirect", func(t *testing.T) {
			assert.False(t, m.AcceptRedirect(path(steps.Summary)))
			assert.True(t, m.AcceptRedirect(path(steps.ReviewRequirements)+"/"))
			assert.False(t, m.Redirected())
			assert.False(t, m.AcceptRedirect(path(steps.ReviewRequirements)), "consumed once")
		})
	})
}

func (s *WizardSuite) TestQueryCapturedOnMount() {
	m := s.wizard.Mount(s.ctx, s.sessionID, path(steps.Summary), "Access-Code=123&Ref=abc")

	items, err := s.store.Items(s.ctx, s.sessionID)
	s.Require().NoError(err)
	s.Equal(map[string]string{"accessCode": "123", "ref": "abc"}, items)
	s.Equal(float64(2), promtest.ToFloat64(s.metrics.QueryParamsCaptured))

	m.Navigate(s.ctx, path(steps.RequestCameraAccess), "Access-Code=123&Ref=abc")
	s.Equal(float64(2), promtest.ToFloat64(s.metrics.QueryParamsCaptured), "unchanged query is not captured again")

	m.Navigate(s.ctx, path(steps.RequestCameraAccess), "next=/dashboard")
	next, err := s.store.GetItem(s.ctx, s.sessionID, "next")
	s.Require().NoError(err)
	s.Equal("/dashboard", next)
}

func (s *WizardSuite) TestCapturedValuesSurviveRemount() {
	first := s.wizard.Mount(s.ctx, s.sessionID, base, "next=/courses/1")
	s.wizard.Unmount(s.ctx, first.ID(), wizard.ReasonReload)
	s.wizard.Mount(s.ctx, s.sessionID, base, "")

	next, err := s.store.GetItem(s.ctx, s.sessionID, "next")
	s.Require().NoError(err)
	s.Equal("/courses/1", next)
}

func (s *WizardSuite) TestRemountResetsBothContainers() {
	m := s.wizard.Mount(s.ctx, s.sessionID, path(steps.ReviewRequirements), "")
	photo := media.Photo{MediaType: "image/png", Data: []byte("X")}
	m.Session().Set(verification.PortraitPhoto, photo)
	m.VerifiedName().Set(verifiedname.VerifiedName, "Ada")

	s.True(s.wizard.Unmount(s.ctx, m.ID(), wizard.ReasonReload))

	_, ok := s.wizard.Lookup(m.ID())
	s.False(ok)
	s.Empty(m.Session().Snapshot(), "old containers are discarded")
	s.Empty(m.VerifiedName().Snapshot())
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.UnmountsTotal.WithLabelValues(wizard.ReasonReload)))

	fresh := s.wizard.Mount(s.ctx, s.sessionID, path(steps.ReviewRequirements), "")
	s.NotEqual(m.ID(), fresh.ID())
	_, ok = fresh.Session().PortraitPhoto()
	s.False(ok)
	_, ok = fresh.VerifiedName().VerifiedName()
	s.False(ok)

	s.False(s.wizard.Unmount(s.ctx, m.ID(), wizard.ReasonReload), "already gone")
}

func (s *WizardSuite) TestUnmatchedPathRendersNothing() {
	m := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	m.Navigate(s.ctx, base+"/not-a-step", "")

	v, ok, err := m.Outlet(s.ctx)
	s.NoError(err)
	s.False(ok)
	s.Equal(router.View{}, v)
	s.Equal(float64(1), promtest.ToFloat64(s.metrics.UnmatchedPathsTotal))
}

func (s *WizardSuite) TestArbitraryJumpIsGuardedByPanel() {
	m := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	m.Navigate(s.ctx, path(steps.TakeIDPhoto), "")

	v := s.outlet(m)
	s.Equal(steps.RequestCameraAccess, v.Step)
	s.Equal(path(steps.RequestCameraAccess), m.Path())
}

func (s *WizardSuite) TestOverlayUnaffectedByNavigation() {
	m := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	m.Overlay().Open()

	_, err := m.Complete(s.ctx, path(steps.ReviewRequirements), nil)
	s.Require().NoError(err)
	m.Navigate(s.ctx, path(steps.PortraitPhotoContext), "")
	s.outlet(m)

	s.True(m.Overlay().IsOpen())
	m.Overlay().Close()
	s.Equal(path(steps.PortraitPhotoContext), m.Path(), "overlay does not move the wizard")
}

func image(payload string) url.Values {
	return url.Values{"image": {"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte(payload))}}
}

func (s *WizardSuite) TestFullWalkthrough() {
	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil)
	m := s.wizard.Mount(s.ctx, s.sessionID, path(steps.ReviewRequirements), "")
	m.VerifiedName().Set(verifiedname.ProfileName, "Ada Lovelace")

	walk := []struct {
		at   steps.Step
		form url.Values
		want steps.Step
	}{
		{steps.ReviewRequirements, nil, steps.RequestCameraAccess},
		{steps.RequestCameraAccess, url.Values{"cameraAccess": {"granted"}}, steps.PortraitPhotoContext},
		{steps.PortraitPhotoContext, nil, steps.TakePortraitPhoto},
		{steps.TakePortraitPhoto, image("portrait"), steps.IDContext},
		{steps.IDContext, nil, steps.TakeIDPhoto},
		{steps.TakeIDPhoto, image("id"), steps.GetNameID},
		{steps.GetNameID, url.Values{"idName": {"Ada Lovelace"}}, steps.Summary},
		{steps.Summary, nil, steps.Submitted},
	}
	for _, w := range walk {
		v, err := m.Complete(s.ctx, path(w.at), w.form)
		s.Require().NoError(err, "completing %s", w.at)
		s.Equal(w.want, v.Step, "after %s", w.at)
		s.Equal(path(w.want), m.Path())
	}

	s.True(m.Session().ReachedSummary())
	s.Equal(verifiedname.StatusSubmitted, m.VerifiedName().Status())
	match, _ := m.Session().NameMatch()
	s.True(match)
}

func (s *WizardSuite) TestValidationErrorRerendersStep() {
	m := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	v, err := m.Complete(s.ctx, path(steps.GetNameID), url.Values{"idName": {"  "}})

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(steps.GetNameID, v.Step)
	s.Equal("id.verification.step.get-name-id.required", v.Error)
	s.Equal(path(steps.GetNameID), m.Path())
}

func (s *WizardSuite) TestCompleteUnknownPath() {
	m := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	_, err := m.Complete(s.ctx, base+"/elsewhere", nil)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *WizardSuite) TestCloseReleasesEveryMount() {
	a := s.wizard.Mount(s.ctx, s.sessionID, base, "")
	s.wizard.Mount(s.ctx, id.NewBrowserSessionID(), base, "")
	a.Session().Set(verification.ReachedSummary, true)
	s.Equal(2, s.wizard.ActiveMounts())

	s.wizard.Close(s.ctx)

	s.Zero(s.wizard.ActiveMounts())
	s.Empty(a.Session().Snapshot())
	s.Equal(float64(2), promtest.ToFloat64(s.metrics.UnmountsTotal.WithLabelValues(wizard.ReasonShutdown)))
}

func (s *WizardSuite) TestLookupNeverRevivesUnmountedMount() {
	for range 50 {
		m := s.wizard.Mount(s.ctx, s.sessionID, base, "")

		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 20 {
					s.wizard.Lookup(m.ID())
				}
			}()
		}
		s.wizard.Unmount(s.ctx, m.ID(), wizard.ReasonNavigateOut)
		wg.Wait()

		_, ok := s.wizard.Lookup(m.ID())
		s.Require().False(ok, "an unmounted mount stays gone")
	}
	s.Zero(s.wizard.ActiveMounts())
	s.Equal(float64(50), promtest.ToFloat64(s.metrics.UnmountsTotal.WithLabelValues(wizard.ReasonNavigateOut)))
}

func TestIdleMountsExpire(t *testing.T) {
	store := storage.NewInMemory(time.Hour)
	m := metrics.New(prometheus.NewRegistry())
	w := newWizard(t, store, m, panelmocks.NewMockSubmitter(gomock.NewController(t)), wizard.WithIdleTTL(50*time.Millisecond))

	mount := w.Mount(context.Background(), id.NewBrowserSessionID(), base, "")
	mount.Session().Set(verification.ReachedSummary, true)

	require.Eventually(t, func() bool { return w.ActiveMounts() == 0 }, 2*time.Second, 20*time.Millisecond)
	_, ok := w.Lookup(mount.ID())
	assert.False(t, ok)
	assert.Empty(t, mount.Session().Snapshot())
	assert.Equal(t, float64(1), promtest.ToFloat64(m.UnmountsTotal.WithLabelValues(wizard.ReasonExpired)))
}

func TestMountEmitsAuditEvents(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := auditmocks.NewMockPublisher(ctrl)
	store := storage.NewInMemory(time.Hour)
	w := newWizard(t, store, nil, panelmocks.NewMockSubmitter(ctrl), wizard.WithAudit(pub))

	var actions []audit.Action
	pub.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		actions = append(actions, e.Action)
		assert.NotEmpty(t, e.MountID)
		assert.False(t, e.Timestamp.IsZero())
		return nil
	}).AnyTimes()

	m := w.Mount(context.Background(), id.NewBrowserSessionID(), path(steps.Summary), "")
	_, _, err := m.Outlet(context.Background())
	require.NoError(t, err)
	w.Unmount(context.Background(), m.ID(), wizard.ReasonNavigateOut)

	assert.Equal(t, []audit.Action{
		audit.ActionMounted,
		audit.ActionRedirected,
		audit.ActionStepEntered,
		audit.ActionUnmounted,
	}, actions)
}

func TestAuditEventsCarryClient(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := auditmocks.NewMockPublisher(ctrl)
	w := newWizard(t, storage.NewInMemory(time.Hour), nil, panelmocks.NewMockSubmitter(ctrl), wizard.WithAudit(pub))

	var events []audit.Event
	pub.EXPECT().Emit(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e audit.Event) error {
		events = append(events, e)
		return nil
	}).AnyTimes()

	ctx := requestcontext.WithClientMetadata(context.Background(), "192.0.2.10", "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0")
	ctx = requestcontext.WithClientAgent(ctx, requestcontext.Agent{Browser: "Firefox 128", OS: "Linux x86_64"})
	m := w.Mount(ctx, id.NewBrowserSessionID(), base, "")
	w.Unmount(ctx, m.ID(), wizard.ReasonNavigateOut)

	require.Len(t, events, 3)
	for _, e := range events[:2] {
		assert.Equal(t, "192.0.2.10", e.ClientIP)
		assert.Equal(t, "Mozilla/5.0 (X11; Linux x86_64) Firefox/128.0", e.UserAgent)
		assert.Equal(t, "Firefox 128", e.Browser)
		assert.Equal(t, "Linux x86_64", e.OS)
	}
	assert.Equal(t, audit.ActionUnmounted, events[2].Action)
	assert.Empty(t, events[2].ClientIP, "teardown runs outside the request")
}
