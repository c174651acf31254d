package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lockerkiosk/internal/adapter/metrics/inmemory"
	"lockerkiosk/internal/adapter/metrics/multi"
	"lockerkiosk/internal/adapter/metrics/prom"
	"lockerkiosk/internal/adapter/repo/memory"
	"lockerkiosk/internal/app/access"
	"lockerkiosk/internal/app/assignment"
	"lockerkiosk/internal/app/audit"
	"lockerkiosk/internal/app/board"
	"lockerkiosk/internal/app/bulk"
	"lockerkiosk/internal/app/intake"
	"lockerkiosk/internal/app/ports"
	"lockerkiosk/internal/app/session"
	"lockerkiosk/internal/config"
	"lockerkiosk/internal/domain/locker"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

type fakeActuator struct {
	mu    sync.Mutex
	calls []locker.Number
	err   error
}

func (a *fakeActuator) Open(_ context.Context, n locker.Number) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, n)
	return a.err
}

type fakeBulk struct {
	err error
}

func (b fakeBulk) Start() (<-chan bulk.Report, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make(chan bulk.Report, 1)
	out <- bulk.Report{Attempted: 16}
	close(out)
	return out, nil
}

type testServer struct {
	h        *server.Hertz
	store    *assignment.Store
	session  *session.CardSession
	actuator *fakeActuator
	events   memory.EventRepo
	kpi      *inmemory.Recorder
}

func newTestServer(t *testing.T, adminToken string, bulkStarter BulkStarter) *testServer {
	t.Helper()
	mem := memory.NewStore()
	store := assignment.NewStore(memory.NewAssignmentRepo(mem), time.Minute)
	t.Cleanup(store.Close)
	sess := session.New()
	act := &fakeActuator{}
	events := memory.NewEventRepo(mem)
	kpi := inmemory.NewRecorder()
	promRec := prom.NewRecorder()
	emitter := audit.Emitter{Sink: events}
	lockers := locker.Range{Count: locker.DefaultCount}

	engine := access.NewEngine(access.Config{
		Store:    store,
		Session:  sess,
		Actuator: act,
		Audit:    emitter,
		Metrics:  kpi,
		Lockers:  lockers,
	})
	handler := Handler{
		IntakeUC:   intake.UseCase{Session: sess, Audit: emitter, Metrics: multi.Metrics{kpi, promRec}},
		BoardUC:    board.UseCase{Store: store, Session: sess, Lockers: lockers},
		AuditUC:    audit.UseCase{Log: events},
		Kiosk:      engine,
		Admin:      engine,
		Bulk:       bulkStarter,
		AdminToken: adminToken,
		KPI:        kpi,
		Metrics:    promRec.Handler(),
	}
	h := server.New()
	handler.RegisterRoutes(h)
	return &testServer{h: h, store: store, session: sess, actuator: act, events: events, kpi: kpi}
}

func (s *testServer) do(method, url, body string, headers ...ut.Header) *ut.ResponseRecorder {
	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: strings.NewReader(body), Len: len(body)}
	}
	return ut.PerformRequest(s.h.Engine, method, url, b, headers...)
}

var formHeader = ut.Header{Key: "Content-Type", Value: "application/x-www-form-urlencoded"}

func decodeErrorCode(t *testing.T, body []byte) string {
	t.Helper()
	var out map[string]map[string]string
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal error body %q: %v", body, err)
	}
	return out["error"]["code"]
}

func TestCardEvent_FormQueryAndRawBody(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})

	cases := []struct {
		name    string
		method  string
		url     string
		body    string
		headers []ut.Header
		want    string
	}{
		{name: "form", method: consts.MethodPost, url: "/card-event", body: "card_id=%22FORM1%22", headers: []ut.Header{formHeader}, want: "FORM1"},
		{name: "query", method: consts.MethodGet, url: "/card-event?card_id=QUERY1", want: "QUERY1"},
		{name: "raw", method: consts.MethodPost, url: "/card-event", body: "card_id=\"RAW1\"\n", headers: []ut.Header{{Key: "Content-Type", Value: "text/plain"}}, want: "RAW1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(tc.method, tc.url, tc.body, tc.headers...)
			resp := w.Result()
			if resp.StatusCode() != consts.StatusOK {
				t.Fatalf("status mismatch: got=%d", resp.StatusCode())
			}
			if got := string(resp.Body()); got != "OK" {
				t.Fatalf("body mismatch: got=%q", got)
			}
			if card, _ := s.session.Current(); card != tc.want {
				t.Fatalf("session card mismatch: got=%q want=%q", card, tc.want)
			}
		})
	}
}

func TestCardEvent_EmptyPayloadIsNoData(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})
	s.session.Present("KEEP")

	for _, body := range []string{"", "   ", "card_id="} {
		w := s.do(consts.MethodPost, "/card-event", body, ut.Header{Key: "Content-Type", Value: "text/plain"})
		resp := w.Result()
		if resp.StatusCode() != consts.StatusOK {
			t.Fatalf("status mismatch for %q: got=%d", body, resp.StatusCode())
		}
		if got := string(resp.Body()); got != "No Data" {
			t.Fatalf("body mismatch for %q: got=%q", body, got)
		}
	}
	if card, _ := s.session.Current(); card != "KEEP" {
		t.Fatalf("empty payload must not change the session, got %q", card)
	}
}

func TestSelectLocker_AcquireThenRejectOtherCard(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})

	s.do(consts.MethodGet, "/card-event?card_id=A1", "")
	w := s.do(consts.MethodPost, "/api/lockers/3/select", "")
	if got := w.Result().StatusCode(); got != consts.StatusOK {
		t.Fatalf("select status mismatch: got=%d body=%s", got, w.Result().Body())
	}
	var res access.Result
	if err := json.Unmarshal(w.Result().Body(), &res); err != nil {
		t.Fatalf("unmarshal select: %v", err)
	}
	if res.Outcome != ports.OutcomeAcquired || res.Locker != 3 || res.Card != "A1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	s.do(consts.MethodGet, "/card-event?card_id=B2", "")
	w = s.do(consts.MethodPost, "/api/lockers/3/select", "")
	if got := w.Result().StatusCode(); got != consts.StatusConflict {
		t.Fatalf("status mismatch: got=%d", got)
	}
	if got := decodeErrorCode(t, w.Result().Body()); got != "not_your_locker" {
		t.Fatalf("error code mismatch: got=%q", got)
	}

	w = s.do(consts.MethodGet, "/api/board", "")
	var b locker.Board
	if err := json.Unmarshal(w.Result().Body(), &b); err != nil {
		t.Fatalf("unmarshal board: %v", err)
	}
	if b.ActiveCard != "B2" {
		t.Fatalf("rejected card must stay presented, got %q", b.ActiveCard)
	}
	if len(b.Cells) != locker.DefaultCount {
		t.Fatalf("expected %d cells, got %d", locker.DefaultCount, len(b.Cells))
	}
	if c := b.Cells[2]; c.Number != 3 || c.Owner != "A1" || c.State != locker.DisplayOpen {
		t.Fatalf("unexpected cell 3: %+v", c)
	}
	if got := s.kpi.Snapshot().SelectionRejected; got != 1 {
		t.Fatalf("expected 1 rejected selection, got %d", got)
	}
}

func TestSelectLocker_BadInput(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})

	cases := []struct {
		url    string
		status int
		code   string
	}{
		{url: "/api/lockers/abc/select", status: consts.StatusBadRequest, code: "invalid_locker"},
		{url: "/api/lockers/99/select", status: consts.StatusBadRequest, code: "invalid_locker"},
		{url: "/api/lockers/1/select", status: consts.StatusConflict, code: "no_card_presented"},
	}
	for _, tc := range cases {
		w := s.do(consts.MethodPost, tc.url, "")
		if got := w.Result().StatusCode(); got != tc.status {
			t.Fatalf("%s: status mismatch: got=%d want=%d", tc.url, got, tc.status)
		}
		if got := decodeErrorCode(t, w.Result().Body()); got != tc.code {
			t.Fatalf("%s: code mismatch: got=%q want=%q", tc.url, got, tc.code)
		}
	}
	if len(s.actuator.calls) != 0 {
		t.Fatalf("no actuation expected, got %v", s.actuator.calls)
	}
}

func TestAdminRoutes_RequireToken(t *testing.T) {
	s := newTestServer(t, "secret", fakeBulk{})

	w := s.do(consts.MethodPost, "/api/admin/lockers/5/bind", `{"card_id":"Z9"}`)
	if got := w.Result().StatusCode(); got != consts.StatusUnauthorized {
		t.Fatalf("status mismatch: got=%d", got)
	}
	if _, ok := s.store.OwnerOf(5); ok {
		t.Fatalf("unauthorized bind must not change ownership")
	}

	token := ut.Header{Key: adminTokenHeader, Value: "secret"}
	w = s.do(consts.MethodPost, "/api/admin/lockers/5/bind", `{"card_id":"Z9"}`, token)
	if got := w.Result().StatusCode(); got != consts.StatusOK {
		t.Fatalf("bind status mismatch: got=%d body=%s", got, w.Result().Body())
	}
	if owner, _ := s.store.OwnerOf(5); owner != "Z9" {
		t.Fatalf("expected owner Z9, got %q", owner)
	}

	w = s.do(consts.MethodPost, "/api/admin/lockers/5/reset", "", token)
	var res access.AdminResult
	if err := json.Unmarshal(w.Result().Body(), &res); err != nil {
		t.Fatalf("unmarshal reset: %v", err)
	}
	if res.PreviousOwner != "Z9" {
		t.Fatalf("expected previous owner Z9, got %+v", res)
	}

	w = s.do(consts.MethodPost, "/api/admin/lockers/5/open", "", token)
	if got := w.Result().StatusCode(); got != consts.StatusOK {
		t.Fatalf("open status mismatch: got=%d", got)
	}
	if len(s.actuator.calls) != 1 || s.actuator.calls[0] != 5 {
		t.Fatalf("unexpected actuator calls: %v", s.actuator.calls)
	}

	w = s.do(consts.MethodGet, "/api/admin/audit?type=admin&limit=10", "", token)
	var list audit.Response
	if err := json.Unmarshal(w.Result().Body(), &list); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(list.Events) != 3 {
		t.Fatalf("expected 3 admin events, got %d", len(list.Events))
	}
	if !strings.HasPrefix(list.Events[0].Details, "manual open") {
		t.Fatalf("expected newest event first, got %q", list.Events[0].Details)
	}
}

func TestAdminBind_InvalidJSON(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})
	w := s.do(consts.MethodPost, "/api/admin/lockers/5/bind", `{"card_id":`)
	if got := w.Result().StatusCode(); got != consts.StatusBadRequest {
		t.Fatalf("status mismatch: got=%d", got)
	}
	if got := decodeErrorCode(t, w.Result().Body()); got != "invalid_json" {
		t.Fatalf("code mismatch: got=%q", got)
	}
}

func TestOpenAll_StartedAndBusy(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})
	w := s.do(consts.MethodPost, "/api/admin/open-all", "")
	if got := w.Result().StatusCode(); got != consts.StatusAccepted {
		t.Fatalf("status mismatch: got=%d", got)
	}

	busy := newTestServer(t, "", fakeBulk{err: bulk.ErrBulkRunning})
	w = busy.do(consts.MethodPost, "/api/admin/open-all", "")
	if got := w.Result().StatusCode(); got != consts.StatusConflict {
		t.Fatalf("status mismatch: got=%d", got)
	}
	if got := decodeErrorCode(t, w.Result().Body()); got != "bulk_running" {
		t.Fatalf("code mismatch: got=%q", got)
	}
}

func TestMetricsAndKPI(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})
	s.do(consts.MethodGet, "/card-event?card_id=M1", "")

	w := s.do(consts.MethodGet, "/metrics", "")
	if got := w.Result().StatusCode(); got != consts.StatusOK {
		t.Fatalf("metrics status mismatch: got=%d", got)
	}
	if !strings.Contains(string(w.Result().Body()), "locker_card_reads_total 1") {
		t.Fatalf("missing card read counter in %s", w.Result().Body())
	}

	w = s.do(consts.MethodGet, "/ops/kpi", "")
	var snap inmemory.Snapshot
	if err := json.Unmarshal(w.Result().Body(), &snap); err != nil {
		t.Fatalf("unmarshal kpi: %v", err)
	}
	if snap.CardReads != 1 {
		t.Fatalf("expected 1 card read, got %d", snap.CardReads)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, "", fakeBulk{})
	w := s.do(consts.MethodOptions, "/api/board", "")
	if got := w.Result().StatusCode(); got != consts.StatusNoContent {
		t.Fatalf("status mismatch: got=%d", got)
	}
}

func TestWriteError_Mapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{err: fmt.Errorf("open: %w", ports.ErrActuatorTimeout), status: consts.StatusGatewayTimeout, code: "actuator_timeout"},
		{err: &ports.ActuatorRejectedError{StatusCode: 500}, status: consts.StatusBadGateway, code: "actuator_rejected"},
		{err: ports.ErrActuatorUnreachable, status: consts.StatusBadGateway, code: "actuator_unreachable"},
		{err: fmt.Errorf("%w: disk full", ports.ErrPersistence), status: consts.StatusInternalServerError, code: "persistence_failure"},
		{err: ports.ErrConflict, status: consts.StatusConflict, code: "conflict"},
		{err: audit.ErrInvalidRequest, status: consts.StatusBadRequest, code: "bad_request"},
		{err: ports.ErrNotFound, status: consts.StatusNotFound, code: "not_found"},
		{err: context.Canceled, status: consts.StatusRequestTimeout, code: "request_cancelled"},
		{err: fmt.Errorf("boom"), status: consts.StatusInternalServerError, code: "internal_error"},
	}
	for _, tc := range cases {
		ctx := &app.RequestContext{}
		writeError(ctx, tc.err)
		if got := ctx.Response.StatusCode(); got != tc.status {
			t.Fatalf("%v: status mismatch: got=%d want=%d", tc.err, got, tc.status)
		}
		if got := decodeErrorCode(t, ctx.Response.Body()); got != tc.code {
			t.Fatalf("%v: code mismatch: got=%q want=%q", tc.err, got, tc.code)
		}
	}
}

type fakeSettings struct {
	cfg   config.Config
	saved []config.Settings
}

func (f *fakeSettings) Current() (config.Config, error) {
	return f.cfg, nil
}

func (f *fakeSettings) SaveSettings(s config.Settings) (config.Config, error) {
	next := f.cfg
	next.BaseURL, next.Token, next.ZoneID, next.ServerPort = s.BaseURL, s.Token, s.ZoneID, s.ServerPort
	if err := next.Validate(); err != nil {
		return config.Config{}, err
	}
	f.saved = append(f.saved, s)
	f.cfg = next
	return next, nil
}

func TestSettings_GetMasksTokenAndPutMerges(t *testing.T) {
	editor := &fakeSettings{cfg: config.Config{
		BaseURL: "http://a/api", Token: "secret", ZoneID: 1, ServerPort: 5000,
		Lockers: 16, ActuatorTimeout: time.Second, OpenGrace: time.Second, BulkDelay: time.Second,
		Store: config.StoreFile, DataFile: "x.json", LogLevel: "info",
	}}
	s := newTestServer(t, "", fakeBulk{})
	handler := Handler{Settings: editor}
	h := server.New()
	handler.RegisterRoutes(h)
	s.h = h

	w := s.do(consts.MethodGet, "/api/admin/settings", "")
	body := string(w.Result().Body())
	if strings.Contains(body, "secret") || !strings.Contains(body, `"token_set":true`) {
		t.Fatalf("unexpected settings body: %s", body)
	}

	w = s.do(consts.MethodPut, "/api/admin/settings", `{"zone_id":7}`)
	if got := w.Result().StatusCode(); got != consts.StatusOK {
		t.Fatalf("status mismatch: got=%d body=%s", got, w.Result().Body())
	}
	if len(editor.saved) != 1 || editor.saved[0].ZoneID != 7 || editor.saved[0].BaseURL != "http://a/api" || editor.saved[0].Token != "secret" {
		t.Fatalf("unexpected saved settings: %+v", editor.saved)
	}

	w = s.do(consts.MethodPut, "/api/admin/settings", `{"base_url":""}`)
	if got := w.Result().StatusCode(); got != consts.StatusBadRequest {
		t.Fatalf("status mismatch: got=%d", got)
	}
}
