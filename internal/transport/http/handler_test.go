package httptransport_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idverify/internal/i18n"
	jwttoken "idverify/internal/jwt_token"
	"idverify/internal/platform/metrics"
	"idverify/internal/platform/middleware"
	"idverify/internal/storage"
	httptransport "idverify/internal/transport/http"
	"idverify/internal/wizard"
	"idverify/internal/wizard/panels"
	panelmocks "idverify/internal/wizard/panels/mocks"
	"idverify/internal/wizard/router"
	"idverify/internal/wizard/steps"
	id "idverify/pkg/domain"
	"idverify/pkg/testutil"
)

const base = "/id-verification"

func path(s steps.Step) string { return base + "/" + s.Slug() }

type HandlerSuite struct {
	suite.Suite
	store     *storage.InMemoryStore
	registry  *prometheus.Registry
	tokens    *jwttoken.Signer
	submitter *panelmocks.MockSubmitter
	wizard    *wizard.Wizard
	handler   http.Handler
	health    error
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	t := s.T()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.store = storage.NewInMemory(time.Hour)
	s.registry = prometheus.NewRegistry()
	m := metrics.New(s.registry)
	s.tokens = jwttoken.NewSigner("test-signing-key", "idverify", "idverify-browser")
	s.submitter = panelmocks.NewMockSubmitter(gomock.NewController(t))
	s.health = nil

	r, err := router.New(base, panels.Table(panels.Deps{
		Store:     s.store,
		Submitter: s.submitter,
		Logger:    logger,
		Metrics:   m,
	}))
	require.NoError(t, err)
	s.wizard = wizard.New(r, s.store, wizard.WithLogger(logger), wizard.WithMetrics(m))

	catalog, err := i18n.Load()
	require.NoError(t, err)
	h, err := httptransport.New(s.wizard, catalog, logger, httptransport.HandlerConfig{SiteName: "Open Learning"})
	require.NoError(t, err)

	s.handler = httptransport.NewRouter(h, httptransport.RouterConfig{
		Logger:     logger,
		Gatherer:   s.registry,
		Tokens:     s.tokens,
		SessionTTL: time.Hour,
		Catalog:    catalog,
		Health: []httptransport.HealthCheck{
			{Name: "storage", Check: func(context.Context) error { return s.health }},
		},
	})
}

func (s *HandlerSuite) browser() *testutil.Browser {
	return testutil.NewBrowser(s.T(), s.handler)
}

// step reports which step the rendered outlet shows.
func step(body string) string {
	const marker = `data-step="`
	i := strings.Index(body, marker)
	if i < 0 {
		return ""
	}
	rest := body[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func (s *HandlerSuite) TestFullLoadRedirectsToFirstStep() {
	b := s.browser()

	rr := b.Load(path(steps.Summary) + "?Access-Code=123")
	testutil.AssertStatus(s.T(), rr, http.StatusSeeOther)
	s.Equal(path(steps.ReviewRequirements), rr.Header().Get("Location"))
	s.NotEmpty(b.Cookie(httptransport.MountCookieName))
	s.NotEmpty(b.Cookie(middleware.SessionCookieName))

	sessionID, err := s.tokens.SessionID(b.Cookie(middleware.SessionCookieName))
	s.Require().NoError(err)
	got, err := s.store.GetItem(context.Background(), sessionID, "accessCode")
	s.Require().NoError(err)
	s.Equal("123", got)
}

func (s *HandlerSuite) TestFollowingRedirectKeepsMount() {
	b := s.browser()
	rr := b.Load(path(steps.TakeIDPhoto))
	mountID := b.Cookie(httptransport.MountCookieName)

	rr = b.Follow(rr)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.ReadBody(s.T(), rr)
	s.Equal(steps.ReviewRequirements.String(), step(body))
	s.Contains(body, "<!doctype html>")
	s.Equal(mountID, b.Cookie(httptransport.MountCookieName))
	s.Equal(1, s.wizard.ActiveMounts())
}

func (s *HandlerSuite) TestFullLoadAtFirstStepRendersDirectly() {
	b := s.browser()
	rr := b.Load(path(steps.ReviewRequirements))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(steps.ReviewRequirements.String(), step(testutil.ReadBody(s.T(), rr)))
}

func (s *HandlerSuite) TestReloadRemounts() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))
	first := b.Cookie(httptransport.MountCookieName)

	rr := b.Partial(http.MethodPost, path(steps.ReviewRequirements), url.Values{})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(path(steps.RequestCameraAccess), rr.Header().Get("HX-Push-Url"))

	rr = b.Load(path(steps.RequestCameraAccess))
	testutil.AssertStatus(s.T(), rr, http.StatusSeeOther)
	s.NotEqual(first, b.Cookie(httptransport.MountCookieName))
	s.Equal(1, s.wizard.ActiveMounts(), "the reloaded mount is discarded")

	rr = b.Follow(rr)
	s.Equal(steps.ReviewRequirements.String(), step(testutil.ReadBody(s.T(), rr)))
}

func (s *HandlerSuite) TestPartialWithoutMountAsksForReload() {
	b := s.browser()
	rr := b.Partial(http.MethodGet, path(steps.IDContext), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Equal(base, rr.Header().Get("HX-Redirect"))
}

func (s *HandlerSuite) TestPostWithoutMountRedirectsToBase() {
	b := s.browser()
	req := httptest.NewRequest(http.MethodPost, path(steps.ReviewRequirements), nil)
	rr := b.Do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusSeeOther)
	s.Equal(base, rr.Header().Get("Location"))
}

func (s *HandlerSuite) TestMountFromAnotherSessionIsIgnored() {
	owner := s.browser()
	owner.Load(path(steps.ReviewRequirements))

	other := s.browser()
	other.Load(path(steps.ReviewRequirements))
	other.Header.Set("Cookie", httptransport.MountCookieName+"="+owner.Cookie(httptransport.MountCookieName))
	other.ClearCookie(httptransport.MountCookieName)

	rr := other.Partial(http.MethodGet, path(steps.IDContext), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
}

func (s *HandlerSuite) TestPartialNavigation() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	rr := b.Partial(http.MethodGet, path(steps.PortraitPhotoContext)+"?course=abc", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.ReadBody(s.T(), rr)
	s.Equal(steps.PortraitPhotoContext.String(), step(body))
	s.NotContains(body, "<!doctype html>", "partials render only the step region")
	s.Empty(rr.Header().Get("HX-Push-Url"))

	sessionID, err := s.tokens.SessionID(b.Cookie(middleware.SessionCookieName))
	s.Require().NoError(err)
	got, err := s.store.GetItem(context.Background(), sessionID, "course")
	s.Require().NoError(err)
	s.Equal("abc", got)
}

func (s *HandlerSuite) TestGuardedStepPushesRedirectedPath() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	rr := b.Partial(http.MethodGet, path(steps.TakePortraitPhoto), nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(steps.RequestCameraAccess.String(), step(testutil.ReadBody(s.T(), rr)))
	s.Equal(path(steps.RequestCameraAccess), rr.Header().Get("HX-Push-Url"))
}

func (s *HandlerSuite) TestUnmatchedPathRendersEmptyRegion() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	rr := b.Partial(http.MethodGet, base+"/not-a-step", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(`<section id="wizard-step" data-step=""></section>`, testutil.ReadBody(s.T(), rr))
}

func (s *HandlerSuite) TestCompleteUnknownStepIsNotFound() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	rr := b.Partial(http.MethodPost, base+"/not-a-step", url.Values{})
	testutil.AssertStatus(s.T(), rr, http.StatusNotFound)
	testutil.AssertErrorCode(s.T(), rr, "not_found")
}

func image(payload string) url.Values {
	return url.Values{"image": {"data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte(payload))}}
}

func (s *HandlerSuite) walkToName(b *testutil.Browser) {
	b.Load(path(steps.ReviewRequirements))
	posts := []struct {
		from steps.Step
		form url.Values
		to   steps.Step
	}{
		{steps.ReviewRequirements, url.Values{}, steps.RequestCameraAccess},
		{steps.RequestCameraAccess, url.Values{"cameraAccess": {"granted"}}, steps.PortraitPhotoContext},
		{steps.PortraitPhotoContext, url.Values{}, steps.TakePortraitPhoto},
		{steps.TakePortraitPhoto, image("portrait"), steps.IDContext},
		{steps.IDContext, url.Values{}, steps.TakeIDPhoto},
		{steps.TakeIDPhoto, image("id"), steps.GetNameID},
	}
	for _, p := range posts {
		rr := b.Partial(http.MethodPost, path(p.from), p.form)
		s.Require().Equal(http.StatusOK, rr.Code, "completing %s", p.from)
		s.Require().Equal(p.to.String(), step(testutil.ReadBody(s.T(), rr)), "after %s", p.from)
	}
}

func (s *HandlerSuite) TestSecondTabTakesOverMount() {
	tabA := s.browser()
	s.walkToName(tabA)

	tabB := tabA.NewTab()
	rr := tabB.Load(path(steps.ReviewRequirements))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotEqual(tabA.PageHeader(httptransport.MountHeader), tabB.PageHeader(httptransport.MountHeader))

	rr = tabA.Partial(http.MethodPost, path(steps.GetNameID), url.Values{"idName": {"Ada"}})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Equal(base, rr.Header().Get("HX-Redirect"))
	s.Empty(rr.Header().Get("HX-Push-Url"))

	mountID, err := id.ParseMountID(tabB.Cookie(httptransport.MountCookieName))
	s.Require().NoError(err)
	m, ok := s.wizard.Lookup(mountID)
	s.Require().True(ok)
	s.Equal(path(steps.ReviewRequirements), m.Path())
	_, present := m.Session().IDPhotoName()
	s.False(present, "input from the older tab must not reach the newer mount")

	// the older tab closing leaves the newer tab's mount alone
	rr = tabA.Partial(http.MethodDelete, base+"/mount", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Equal(1, s.wizard.ActiveMounts())
	s.Equal(mountID.String(), tabB.Cookie(httptransport.MountCookieName))

	rr = tabB.Partial(http.MethodPost, path(steps.ReviewRequirements), url.Values{})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(steps.RequestCameraAccess.String(), step(testutil.ReadBody(s.T(), rr)))
}

func (s *HandlerSuite) TestPartialWithoutPageMountAsksForReload() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	req := httptest.NewRequest(http.MethodGet, path(steps.IDContext), nil)
	req.Header.Set("HX-Request", "true")
	rr := b.Do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Equal(base, rr.Header().Get("HX-Redirect"))
}

func (s *HandlerSuite) TestFormPostCarriesMountField() {
	b := s.browser()
	rr := b.Load(path(steps.ReviewRequirements))
	body := testutil.ReadBody(s.T(), rr)
	mountID := b.Cookie(httptransport.MountCookieName)
	s.Contains(body, `<input type="hidden" name="mount" value="`+mountID+`">`)

	form := url.Values{httptransport.MountField: {mountID}}
	req := httptest.NewRequest(http.MethodPost, path(steps.ReviewRequirements), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr = b.Do(req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body = testutil.ReadBody(s.T(), rr)
	s.Contains(body, "<!doctype html>")
	s.Equal(steps.RequestCameraAccess.String(), step(body))
}

func (s *HandlerSuite) TestValidationErrorRerendersStep() {
	b := s.browser()
	s.walkToName(b)

	rr := b.Partial(http.MethodPost, path(steps.GetNameID), url.Values{"idName": {"   "}})
	testutil.AssertStatus(s.T(), rr, http.StatusUnprocessableEntity)
	body := testutil.ReadBody(s.T(), rr)
	s.Equal(steps.GetNameID.String(), step(body))
	s.Contains(body, "Enter the name shown on your ID.")
}

func (s *HandlerSuite) TestSubmitReachesSubmitted() {
	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sub panels.Submission) error {
			s.Equal("Ada Lovelace", sub.IDPhotoName)
			return nil
		})
	b := s.browser()
	s.walkToName(b)

	rr := b.Partial(http.MethodPost, path(steps.GetNameID), url.Values{"idName": {"Ada  Lovelace"}})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(steps.Summary.String(), step(testutil.ReadBody(s.T(), rr)))

	rr = b.Partial(http.MethodPost, path(steps.Summary), url.Values{})
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(steps.Submitted.String(), step(testutil.ReadBody(s.T(), rr)))
	s.Equal(path(steps.Submitted), rr.Header().Get("HX-Push-Url"))
}

func (s *HandlerSuite) TestSubmitFailureIsInternalError() {
	s.submitter.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(errors.New("upstream down"))
	b := s.browser()
	s.walkToName(b)
	b.Partial(http.MethodPost, path(steps.GetNameID), url.Values{"idName": {"Ada"}})

	rr := b.Partial(http.MethodPost, path(steps.Summary), url.Values{})
	testutil.AssertStatus(s.T(), rr, http.StatusInternalServerError)
	errResp := testutil.UnmarshalErrorResponse(s.T(), rr)
	s.Equal("internal_error", errResp["error"])
	s.NotContains(errResp, "error_description", "internal detail stays in the logs")
}

func (s *HandlerSuite) TestPrivacyOverlayIndependentOfSteps() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))

	rr := b.Partial(http.MethodPost, base+"/privacy/open", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	body := testutil.ReadBody(s.T(), rr)
	s.Contains(body, `<div id="privacy-overlay">`)
	s.Contains(body, "Why does Open Learning need my photo?")
	s.Contains(body, "<strong>not</strong>")

	rr = b.Partial(http.MethodGet, path(steps.IDContext), nil)
	s.Equal(steps.IDContext.String(), step(testutil.ReadBody(s.T(), rr)))

	// a reload remounts, so the overlay starts closed again
	rr = b.Load(path(steps.ReviewRequirements))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.NotContains(testutil.ReadBody(s.T(), rr), "modal-layer")

	b.Partial(http.MethodPost, base+"/privacy/open", nil)
	rr = b.Partial(http.MethodPost, base+"/privacy/close", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Equal(`<div id="privacy-overlay"></div>`, testutil.ReadBody(s.T(), rr))
}

func (s *HandlerSuite) TestLocaleNegotiation() {
	b := s.browser()
	b.Header.Set("Accept-Language", "es-MX,es;q=0.9")
	rr := b.Load(path(steps.ReviewRequirements))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Contains(testutil.ReadBody(s.T(), rr), `<html lang="es`)
	s.Contains(rr.Header().Get("Vary"), "Accept-Language")
}

func (s *HandlerSuite) TestUnmountOnPageHide() {
	b := s.browser()
	b.Load(path(steps.ReviewRequirements))
	s.Require().Equal(1, s.wizard.ActiveMounts())

	rr := b.Partial(http.MethodDelete, base+"/mount", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	s.Equal(0, s.wizard.ActiveMounts())
	s.Empty(b.Cookie(httptransport.MountCookieName))

	rr = b.Partial(http.MethodGet, path(steps.IDContext), nil)
	s.Equal(base, rr.Header().Get("HX-Redirect"))
}

func (s *HandlerSuite) TestInvalidSessionCookieIsReplaced() {
	b := s.browser()
	b.Header.Set("Cookie", middleware.SessionCookieName+"=garbage")
	rr := b.Load(path(steps.ReviewRequirements))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	var issued string
	for _, c := range rr.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			issued = c.Value
		}
	}
	s.Require().NotEmpty(issued)
	_, err := s.tokens.SessionID(issued)
	s.NoError(err)
}

func (s *HandlerSuite) TestHealthz() {
	rr := testutil.DoRequest(s.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	s.health = errors.New("connection refused")
	rr = testutil.DoRequest(s.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &body))
	s.Equal("unavailable", body.Status)
	s.Equal("connection refused", body.Checks["storage"])
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.browser().Load(path(steps.Summary))

	rr := testutil.DoRequest(s.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertStatus(s.T(), rr, http.StatusOK)
	s.Contains(testutil.ReadBody(s.T(), rr), "idverify_wizard_mounts_total 1")
}

func TestRoutes(t *testing.T) {
	s := new(HandlerSuite)
	s.SetT(t)
	s.SetupTest()

	routes, err := httptransport.Routes(s.handler)
	require.NoError(t, err)
	for _, want := range []string{
		"GET /healthz",
		"GET " + base + "/*",
		"POST " + base + "/*",
		"POST " + base + "/privacy/open",
		"DELETE " + base + "/mount",
	} {
		assert.Contains(t, routes, want)
	}
}
