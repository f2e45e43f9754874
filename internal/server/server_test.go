package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/dialbook/internal/booking"
	"github.com/zulandar/dialbook/internal/models"
	"github.com/zulandar/dialbook/internal/orchestrator"
	"github.com/zulandar/dialbook/internal/telephony"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockCalls struct {
	initiated  []string
	initErr    error
	turns      []telephony.TurnEvent
	turnMarkup string
	turnErr    error
	statuses   []telephony.StatusEvent
	statusErr  error
}

func (m *mockCalls) Initiate(_ context.Context, id string) (*models.BookingRequest, error) {
	m.initiated = append(m.initiated, id)
	if m.initErr != nil {
		return nil, m.initErr
	}
	return &models.BookingRequest{ID: id, Status: models.StatusCalling, CallID: "CA1"}, nil
}

func (m *mockCalls) HandleTurn(_ context.Context, ev telephony.TurnEvent) (string, error) {
	m.turns = append(m.turns, ev)
	return m.turnMarkup, m.turnErr
}

func (m *mockCalls) HandleStatus(_ context.Context, ev telephony.StatusEvent) error {
	m.statuses = append(m.statuses, ev)
	return m.statusErr
}

func testBookings(t *testing.T) *booking.Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.AutoMigrate(&models.BookingRequest{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := booking.NewStore(booking.StoreOpts{DB: db})
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func testRouter(t *testing.T, opts Opts) *gin.Engine {
	t.Helper()
	r, err := NewRouter(opts)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func doForm(r http.Handler, path string, form url.Values, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func medicalBody() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":       "user-1",
		"category":       "medical",
		"provider_name":  "Dr. Weber",
		"provider_phone": "+4930123456",
		"exact_time":     "2025-03-10T09:00:00Z",
		"details":        map[string]interface{}{"reason": "checkup"},
	}
}

func TestNewRouter_Requires(t *testing.T) {
	if _, err := NewRouter(Opts{Calls: &mockCalls{}}); err == nil {
		t.Error("expected error without bookings")
	}
	if _, err := NewRouter(Opts{Bookings: testBookings(t)}); err == nil {
		t.Error("expected error without calls")
	}
}

func TestHealthz(t *testing.T) {
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: &mockCalls{}})
	w := doJSON(r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestCreateAndGetBooking(t *testing.T) {
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: &mockCalls{}})

	w := doJSON(r, http.MethodPost, "/api/bookings", medicalBody())
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", w.Code, w.Body)
	}
	var created models.BookingRequest
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != models.StatusPending || created.Details.Reason != "checkup" {
		t.Errorf("created = %+v", created)
	}
	want := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	if created.Preference.ExactTime == nil || !created.Preference.ExactTime.Equal(want) {
		t.Errorf("exact time = %v", created.Preference.ExactTime)
	}

	w = doJSON(r, http.MethodGet, "/api/bookings/"+created.ID+"?owner=user-1", nil)
	if w.Code != http.StatusOK {
		t.Errorf("get status = %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/api/bookings/"+created.ID+"?owner=someone-else", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get as other owner status = %d, want 404", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/api/bookings/"+created.ID, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("get without owner status = %d, want 400", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/api/bookings?owner=user-1", nil)
	var list struct {
		Bookings []models.BookingRequest `json:"bookings"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if w.Code != http.StatusOK || len(list.Bookings) != 1 {
		t.Errorf("list = %d %s", w.Code, w.Body)
	}
	w = doJSON(r, http.MethodGet, "/api/bookings?owner=nobody", nil)
	if !strings.Contains(w.Body.String(), `"bookings":[]`) {
		t.Errorf("empty list body = %s", w.Body)
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: &mockCalls{}})

	body := medicalBody()
	body["details"] = map[string]interface{}{}
	w := doJSON(r, http.MethodPost, "/api/bookings", body)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp struct {
		Fields map[string][]string `json:"fields"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Fields) == 0 {
		t.Errorf("no field errors in %s", w.Body)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/bookings", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d", rec.Code)
	}
}

func TestStartCall(t *testing.T) {
	tests := []struct {
		name    string
		initErr error
		want    int
	}{
		{"accepted", nil, http.StatusAccepted},
		{"provider down", fmt.Errorf("orchestrator: initiate: %w", orchestrator.ErrProviderUnavailable), http.StatusBadGateway},
		{"already calling", fmt.Errorf("orchestrator: initiate: %w", booking.ErrInvalidTransition), http.StatusConflict},
		{"store down", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bookings := testBookings(t)
			calls := &mockCalls{initErr: tt.initErr}
			r := testRouter(t, Opts{Bookings: bookings, Calls: calls})

			w := doJSON(r, http.MethodPost, "/api/bookings", medicalBody())
			var created models.BookingRequest
			json.Unmarshal(w.Body.Bytes(), &created)

			w = doJSON(r, http.MethodPost, "/api/bookings/"+created.ID+"/call?owner=user-1", nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body)
			}
			if len(calls.initiated) != 1 || calls.initiated[0] != created.ID {
				t.Errorf("initiated = %v", calls.initiated)
			}
		})
	}
}

func TestStartCall_OtherOwner(t *testing.T) {
	bookings := testBookings(t)
	calls := &mockCalls{}
	r := testRouter(t, Opts{Bookings: bookings, Calls: calls})

	w := doJSON(r, http.MethodPost, "/api/bookings", medicalBody())
	var created models.BookingRequest
	json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(r, http.MethodPost, "/api/bookings/"+created.ID+"/call?owner=intruder", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if len(calls.initiated) != 0 {
		t.Error("call placed for another owner's request")
	}
}

func TestTurnWebhook(t *testing.T) {
	calls := &mockCalls{turnMarkup: "<Response><Hangup></Hangup></Response>"}
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: calls})

	h := http.Header{}
	h.Set(telephony.IdempotencyHeader, "tok-1")
	w := doForm(r, "/webhooks/telephony/turn", url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Yes"}}, h)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if w.Body.String() != calls.turnMarkup {
		t.Errorf("body = %s", w.Body)
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "application/xml") {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	ev := calls.turns[0]
	if ev.CallID != "CA1" || ev.Speech == nil || *ev.Speech != "Yes" || ev.IdempotencyToken != "tok-1" {
		t.Errorf("event = %+v", ev)
	}
}

func TestTurnWebhook_Errors(t *testing.T) {
	calls := &mockCalls{turnErr: errors.New("database is locked")}
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: calls})

	if w := doForm(r, "/webhooks/telephony/turn", url.Values{"SpeechResult": {"Yes"}}, nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing CallSid status = %d, want 400", w.Code)
	}
	if w := doForm(r, "/webhooks/telephony/turn", url.Values{"CallSid": {"CA1"}}, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("store failure status = %d, want 503", w.Code)
	}
}

func TestStatusWebhook(t *testing.T) {
	calls := &mockCalls{}
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: calls})

	w := doForm(r, "/webhooks/telephony/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"no-answer"}}, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d: %s", w.Code, w.Body)
	}
	if calls.statuses[0].Status != telephony.StatusNoAnswer {
		t.Errorf("event = %+v", calls.statuses[0])
	}

	if w := doForm(r, "/webhooks/telephony/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"on-fire"}}, nil); w.Code != http.StatusBadRequest {
		t.Errorf("unknown status code = %d, want 400", w.Code)
	}

	calls.statusErr = errors.New("database is locked")
	if w := doForm(r, "/webhooks/telephony/status", url.Values{"CallSid": {"CA1"}, "CallStatus": {"busy"}}, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("store failure status = %d, want 503", w.Code)
	}
}

// signForm signs a webhook POST the way the telephony provider does.
func signForm(authToken, fullURL string, form url.Values) string {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k + form.Get(k))
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignature(t *testing.T) {
	calls := &mockCalls{turnMarkup: "<Response/>"}
	r := testRouter(t, Opts{
		Bookings:      testBookings(t),
		Calls:         calls,
		AuthToken:     "secret",
		PublicBaseURL: "https://calls.example.com/",
	})
	form := url.Values{"CallSid": {"CA1"}, "SpeechResult": {"Yes"}}

	w := doForm(r, "/webhooks/telephony/turn", form, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("unsigned status = %d, want 403", w.Code)
	}

	h := http.Header{}
	h.Set(telephony.SignatureHeader, signForm("secret", "https://calls.example.com/webhooks/telephony/turn", form))
	w = doForm(r, "/webhooks/telephony/turn", form, h)
	if w.Code != http.StatusOK {
		t.Errorf("signed status = %d, want 200", w.Code)
	}
	if len(calls.turns) != 1 {
		t.Errorf("turns handled = %d, want 1", len(calls.turns))
	}

	// Intake routes are not signed.
	if w := doJSON(r, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Errorf("healthz status = %d", w.Code)
	}
}

func TestRateLimit(t *testing.T) {
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: &mockCalls{}, RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		if w := doJSON(r, http.MethodGet, "/api/bookings", nil); w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d limited", i)
		}
	}
	if w := doJSON(r, http.MethodGet, "/api/bookings", nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", w.Code)
	}

	// Another client has its own bucket.
	req := httptest.NewRequest(http.MethodGet, "/api/bookings", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code == http.StatusTooManyRequests {
		t.Errorf("other client limited")
	}
}

func TestRateLimit_WebhooksUnlimited(t *testing.T) {
	calls := &mockCalls{}
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: calls, RequestsPerMinute: 1})

	if w := doJSON(r, http.MethodGet, "/api/bookings", nil); w.Code == http.StatusTooManyRequests {
		t.Fatal("first api request limited")
	}
	if w := doJSON(r, http.MethodGet, "/api/bookings", nil); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second api request status = %d, want 429", w.Code)
	}

	// A single call produces a burst of status callbacks from one provider IP.
	for _, status := range []string{"initiated", "ringing", "answered", "completed"} {
		form := url.Values{"CallSid": {"CA1"}, "CallStatus": {status}}
		if w := doForm(r, "/webhooks/telephony/status", form, nil); w.Code != http.StatusNoContent {
			t.Errorf("%s callback status = %d, want 204", status, w.Code)
		}
	}
	if len(calls.statuses) != 4 {
		t.Errorf("status callbacks handled = %d, want 4", len(calls.statuses))
	}
	for i := 0; i < 3; i++ {
		if w := doJSON(r, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
			t.Errorf("healthz %d status = %d", i, w.Code)
		}
	}
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := testRouter(t, Opts{Bookings: testBookings(t), Calls: &mockCalls{}, Logger: zap.New(core)})

	doJSON(r, http.MethodGet, "/healthz", nil)
	doJSON(r, http.MethodGet, "/api/bookings", nil)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[0].ContextMap()["path"] != "/healthz" {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Level != zap.WarnLevel || entries[1].ContextMap()["status"] != int64(http.StatusBadRequest) {
		t.Errorf("second entry = %+v", entries[1].ContextMap())
	}
}

func TestStart_RequiresDeps(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil || !strings.Contains(err.Error(), "is required") {
		t.Errorf("error = %v", err)
	}
}
