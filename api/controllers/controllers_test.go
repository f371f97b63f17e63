package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/barter-backend/internal/friends"
	"github.com/angelmondragon/barter-backend/internal/items"
	"github.com/angelmondragon/barter-backend/internal/trades"
	"github.com/angelmondragon/barter-backend/internal/users"
	"github.com/angelmondragon/barter-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/barter-backend/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details any    `json:"details"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, rec.Body.String())
	}
	return env
}

func withURLParams(r *http.Request, kv ...string) *http.Request {
	rc := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rc.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

type stubTrades struct {
	trades.Service
	proposed  trades.ProposeTradeInput
	acceptErr error
	limit     int
}

func (s *stubTrades) ProposeTrade(_ context.Context, in trades.ProposeTradeInput) (*trades.ProposeTradeResult, error) {
	s.proposed = in
	return &trades.ProposeTradeResult{PartnershipID: 3, PostID: 9}, nil
}

func (s *stubTrades) AcceptTrade(_ context.Context, postID uint64) (*trades.AcceptTradeResult, error) {
	if s.acceptErr != nil {
		return nil, s.acceptErr
	}
	return &trades.AcceptTradeResult{PostID: postID, TransactionID: 1}, nil
}

func (s *stubTrades) ListFullPosts(_ context.Context, limit int) ([]trades.FullPost, error) {
	s.limit = limit
	return []trades.FullPost{}, nil
}

func TestProposeTradeDecodesOriginalFieldNames(t *testing.T) {
	svc := &stubTrades{}
	body := `{"user1_id":1,"requestingItemId":20,"requestingAmount":1,"offeringItemId":10,"offeringAmount":1,"isNegotiable":true,"hashcode":"abcdef1234"}`
	req := httptest.NewRequest(http.MethodPost, "/postpartnership", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ProposeTrade(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	want := trades.ProposeTradeInput{
		InitiatorID: 1, RequestingItemID: 20, RequestingAmount: 1,
		OfferingItemID: 10, OfferingAmount: 1, IsNegotiable: true, HashCode: "abcdef1234",
	}
	if svc.proposed != want {
		t.Fatalf("unexpected input %+v", svc.proposed)
	}
	var result trades.ProposeTradeResult
	if err := json.Unmarshal(decodeEnvelope(t, rec).Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.PostID != 9 || result.PartnershipID != 3 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAcceptTradeMapsErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", pkgerrors.New(pkgerrors.CodeNotFound, "Post not found"), http.StatusNotFound},
		{"retryable", pkgerrors.New(pkgerrors.CodeDependency, "trade is being processed"), http.StatusServiceUnavailable},
		{"transaction", pkgerrors.New(pkgerrors.CodeTransaction, "delete_posts failed"), http.StatusInternalServerError},
		{"untyped", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := withURLParams(httptest.NewRequest(http.MethodPost, "/acceptTrade/5", nil), "postId", "5")
			rec := httptest.NewRecorder()
			AcceptTrade(&stubTrades{acceptErr: tc.err}, nil).ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, rec.Code)
			}
			if decodeEnvelope(t, rec).Error == nil {
				t.Fatalf("expected error envelope")
			}
		})
	}
}

func TestAcceptTradeRejectsBadID(t *testing.T) {
	req := withURLParams(httptest.NewRequest(http.MethodPost, "/acceptTrade/abc", nil), "postId", "abc")
	rec := httptest.NewRecorder()
	AcceptTrade(&stubTrades{}, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestListFullPostsLimit(t *testing.T) {
	svc := &stubTrades{}
	req := withURLParams(httptest.NewRequest(http.MethodGet, "/fullPost/4", nil), "limit", "4")
	rec := httptest.NewRecorder()
	ListFullPosts(svc, nil).ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || svc.limit != 4 {
		t.Fatalf("expected limit 4, got status %d limit %d", rec.Code, svc.limit)
	}

	svc = &stubTrades{}
	rec = httptest.NewRecorder()
	ListFullPosts(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fullPost", nil))
	if rec.Code != http.StatusOK || svc.limit != 0 {
		t.Fatalf("expected unlimited listing, got status %d limit %d", rec.Code, svc.limit)
	}
}

type stubFriends struct {
	friends.Service
	result *friends.SendRequestResult
	err    error
	gotID  uint64
	gotTo  string
}

func (s *stubFriends) SendFriendRequest(_ context.Context, requesterID uint64, email string) (*friends.SendRequestResult, error) {
	s.gotID, s.gotTo = requesterID, email
	return s.result, s.err
}

func TestAddFriendOutcomes(t *testing.T) {
	body := `{"requesterId":3,"recieverEmail":"user3@barter.io"}`

	svc := &stubFriends{result: &friends.SendRequestResult{Outcome: friends.OutcomeSelfRequest, Message: "You can't befriend yourself"}}
	rec := httptest.NewRecorder()
	AddFriend(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/addFriend", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("self request should be 200, got %d", rec.Code)
	}
	if svc.gotID != 3 || svc.gotTo != "user3@barter.io" {
		t.Fatalf("unexpected call %d %q", svc.gotID, svc.gotTo)
	}

	svc = &stubFriends{err: pkgerrors.New(pkgerrors.CodeConflict, "Friend request already exists or you are already friends")}
	rec = httptest.NewRecorder()
	AddFriend(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/addFriend", strings.NewReader(body)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", rec.Code)
	}
	if msg := decodeEnvelope(t, rec).Error.Message; msg != "Friend request already exists or you are already friends" {
		t.Fatalf("unexpected message %q", msg)
	}
}

type stubItems struct {
	items.Service
	got items.ListItemInput
}

func (s *stubItems) ListItem(_ context.Context, in items.ListItemInput) (*items.ListItemResult, error) {
	s.got = in
	if in.UserID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "User ID is required")
	}
	return &items.ListItemResult{ItemID: 11}, nil
}

func TestListItem(t *testing.T) {
	svc := &stubItems{}
	body := `{"name":"  Lamp ","value":50,"transfer_cost":"4.50","condition":"used","user_id":1,"friend_user_id":2}`
	rec := httptest.NewRecorder()
	ListItem(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/item", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.got.Name != "Lamp" || svc.got.TransferCost.String() != "4.5" || svc.got.FriendUserID != 2 {
		t.Fatalf("unexpected input %+v", svc.got)
	}

	rec = httptest.NewRecorder()
	ListItem(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/item", strings.NewReader(`{"name":"Lamp","friend_user_id":5}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if msg := decodeEnvelope(t, rec).Error.Message; msg != "User ID is required" {
		t.Fatalf("unexpected message %q", msg)
	}
}

type stubUsers struct {
	users.Service
}

func (stubUsers) Signin(_ context.Context, email, password string) (*users.SigninResult, error) {
	if password != "right" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "Invalid credentials")
	}
	return &users.SigninResult{Message: "Login successful", UserID: 4, AccessLevel: 1}, nil
}

func TestSignin(t *testing.T) {
	rec := httptest.NewRecorder()
	Signin(stubUsers{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(`{"email":"a@barter.io","password":"right"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	Signin(stubUsers{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/signin", strings.NewReader(`{"email":"a@barter.io","password":"wrong"}`)))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "dev"}}
	ok := ReadinessCheck{Name: "db", Pinger: pingFunc(func(context.Context) error { return nil })}
	down := ReadinessCheck{Name: "redis", Pinger: pingFunc(func(context.Context) error { return errors.New("refused") })}

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, ok, ReadinessCheck{Name: "skipped"}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if rec.Header().Get(envHeader) != "dev" {
		t.Fatalf("expected env header")
	}

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
