package flow

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/authserver/internal/account"
	"github.com/louisbranch/authserver/internal/oidc"
	"github.com/louisbranch/authserver/internal/profile"
	"github.com/louisbranch/authserver/internal/storage"
)

type fakeStore struct {
	mu        sync.Mutex
	accounts  map[string]account.Account // keyed by id
	commitErr error
	begins    int
	openTxs   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]account.Account)}
}

func (s *fakeStore) Begin(ctx context.Context) (storage.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.begins++
	s.openTxs++
	return &fakeTx{store: s}, nil
}

func (s *fakeStore) FindByID(ctx context.Context, accountID string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[accountID]
	if !ok {
		return account.Account{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) FindByUsername(ctx context.Context, username string) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Username == username {
			return a, nil
		}
	}
	return account.Account{}, storage.ErrNotFound
}

func (s *fakeStore) FindCredentials(ctx context.Context, username string) (account.Account, string, error) {
	return account.Account{}, "", storage.ErrNotFound
}

func (s *fakeStore) Update(ctx context.Context, a account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return storage.ErrNotFound
	}
	for id, other := range s.accounts {
		if id != a.ID && other.Username == a.Username {
			return account.ErrUsernameTaken
		}
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *fakeStore) DeleteAllAccounts(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = make(map[string]account.Account)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

type fakeTx struct {
	store      *fakeStore
	staged     *account.Account
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Create(ctx context.Context, c account.Candidate) (account.Account, error) {
	a, err := account.New(c, nil, nil)
	if err != nil {
		return account.Account{}, err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for _, other := range t.store.accounts {
		if other.Username == a.Username {
			return account.Account{}, account.ErrUsernameTaken
		}
	}
	t.staged = &a
	return a, nil
}

func (t *fakeTx) Commit() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.commitErr != nil {
		return t.store.commitErr
	}
	if t.staged != nil {
		t.store.accounts[t.staged.ID] = *t.staged
	}
	t.committed = true
	t.store.openTxs--
	return nil
}

func (t *fakeTx) Rollback() error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.committed || t.rolledBack {
		return nil
	}
	t.rolledBack = true
	t.staged = nil
	t.store.openTxs--
	return nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	failWith error
	created  []profile.Payload
	onCreate func()
}

func (p *fakeProfiles) CreateProfile(ctx context.Context, payload profile.Payload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.onCreate != nil {
		p.onCreate()
	}
	if p.failWith != nil {
		return p.failWith
	}
	p.created = append(p.created, payload)
	return nil
}

type fakeInteractions struct {
	interaction *oidc.Interaction
	denied      []string
}

func (f *fakeInteractions) AuthorizationContext(ctx context.Context, returnURL string) (*oidc.Interaction, error) {
	if f.interaction != nil && f.interaction.ReturnURL == returnURL {
		return f.interaction, nil
	}
	return nil, nil
}

func (f *fakeInteractions) Deny(ctx context.Context, interaction *oidc.Interaction, reason string) error {
	f.denied = append(f.denied, reason)
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	sessions map[string]storage.WebSession
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]storage.WebSession)}
}

func (f *fakeSessions) PutSession(ctx context.Context, ws storage.WebSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[ws.ID] = ws
	return nil
}

func (f *fakeSessions) GetSession(ctx context.Context, sessionID string) (storage.WebSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.sessions[sessionID]
	if !ok {
		return storage.WebSession{}, storage.ErrNotFound
	}
	return ws, nil
}

func (f *fakeSessions) RevokeSession(ctx context.Context, sessionID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws, ok := f.sessions[sessionID]
	if !ok || ws.RevokedAt != nil {
		return storage.ErrNotFound
	}
	ws.RevokedAt = &now
	f.sessions[sessionID] = ws
	return nil
}

func (f *fakeSessions) RevokeAccountSessions(ctx context.Context, accountID string, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, ws := range f.sessions {
		if ws.AccountID == accountID && ws.RevokedAt == nil {
			ws.RevokedAt = &now
			f.sessions[id] = ws
		}
	}
	return nil
}

func (f *fakeSessions) activeFor(accountID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ws := range f.sessions {
		if ws.AccountID == accountID && ws.RevokedAt == nil {
			n++
		}
	}
	return n
}

type env struct {
	service      *Service
	store        *fakeStore
	sessions     *fakeSessions
	profiles     *fakeProfiles
	interactions *fakeInteractions
}

func newEnv() *env {
	store := newFakeStore()
	sessions := newFakeSessions()
	profiles := &fakeProfiles{}
	interactions := &fakeInteractions{}
	logger := log.New(io.Discard, "", 0)
	return &env{
		service:      New(store, sessions, profiles, interactions, logger),
		store:        store,
		sessions:     sessions,
		profiles:     profiles,
		interactions: interactions,
	}
}

func validRegisterInput() RegisterInput {
	return RegisterInput{
		Candidate: account.Candidate{
			Username: "alice",
			Email:    "alice@example.com",
			Password: "correct horse battery",
		},
		Profile: profile.Payload{FirstName: "Alice"},
		Submit:  true,
	}
}

func TestRegisterSuccess(t *testing.T) {
	e := newEnv()

	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected field errors: %v", res.Fields)
	}
	if res.Destination != oidc.RedirectTo("/") {
		t.Fatalf("unexpected destination: %+v", res.Destination)
	}
	if e.store.count() != 1 {
		t.Fatalf("expected 1 account, got %d", e.store.count())
	}
	if len(e.profiles.created) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(e.profiles.created))
	}
	if e.profiles.created[0].AccountID == "" {
		t.Fatal("profile payload missing account id")
	}
	if res.Session == nil {
		t.Fatal("expected sign-in session")
	}
	if e.sessions.activeFor(res.Session.AccountID) != 1 {
		t.Fatal("expected one active session")
	}
}

func TestRegisterRemoteCallPrecedesCommit(t *testing.T) {
	e := newEnv()
	e.profiles.onCreate = func() {
		if n := len(e.store.accounts); n != 0 {
			t.Errorf("account committed before remote call returned: %d rows", n)
		}
	}

	if _, err := e.service.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	if e.store.openTxs != 0 {
		t.Fatalf("transaction left open: %d", e.store.openTxs)
	}
}

func TestRegisterRemoteFailureRollsBack(t *testing.T) {
	e := newEnv()
	e.profiles.failWith = &profile.RemoteError{Detail: "username taken|email invalid"}

	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(res.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %v", res.Fields)
	}
	if res.Fields[0].Message != "username taken" || res.Fields[1].Message != "email invalid" {
		t.Fatalf("unexpected field errors: %v", res.Fields)
	}
	if e.store.count() != 0 {
		t.Fatalf("account survived failed remote call: %d rows", e.store.count())
	}
	if e.store.openTxs != 0 {
		t.Fatalf("transaction left open: %d", e.store.openTxs)
	}
	if res.Session != nil {
		t.Fatal("failed registration must not sign in")
	}
}

func TestRegisterTransportFailureRollsBack(t *testing.T) {
	e := newEnv()
	e.profiles.failWith = errors.New("rpc error: connection refused")

	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(res.Fields) != 1 {
		t.Fatalf("expected 1 field error, got %v", res.Fields)
	}
	if res.Fields[0].Message == "rpc error: connection refused" {
		t.Fatal("raw transport error leaked to the caller")
	}
	if e.store.count() != 0 {
		t.Fatalf("account survived failed remote call: %d rows", e.store.count())
	}
}

func TestRegisterCommitFailureWindow(t *testing.T) {
	e := newEnv()
	e.store.commitErr = errors.New("disk full")

	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !res.Failed() {
		t.Fatal("expected a generic failure")
	}
	// The remote profile exists while the account does not. This window is
	// accepted; the reverse ordering must never happen.
	if len(e.profiles.created) != 1 {
		t.Fatalf("expected profile created, got %d", len(e.profiles.created))
	}
	if e.store.count() != 0 {
		t.Fatalf("expected no committed account, got %d", e.store.count())
	}
}

func TestRegisterDuplicatePreCheck(t *testing.T) {
	e := newEnv()
	if _, err := e.service.Register(context.Background(), validRegisterInput()); err != nil {
		t.Fatalf("first register: %v", err)
	}
	e.store.begins = 0

	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if len(res.Fields) != 1 || res.Fields[0].Field != "username" {
		t.Fatalf("expected username field error, got %v", res.Fields)
	}
	if e.store.begins != 0 {
		t.Fatal("pre-check failure must not open a transaction")
	}
}

func TestRegisterValidationFailure(t *testing.T) {
	e := newEnv()
	in := validRegisterInput()
	in.Candidate.Email = "not-an-email"

	res, err := e.service.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(res.Fields) != 1 || res.Fields[0].Field != "email" {
		t.Fatalf("expected email field error, got %v", res.Fields)
	}
	if e.store.begins != 0 {
		t.Fatal("validation failure must not open a transaction")
	}
}

func TestRegisterDeclineDeniesInteraction(t *testing.T) {
	e := newEnv()
	e.interactions.interaction = &oidc.Interaction{
		ID: "i1", ClientID: "mobile", NativeClient: true, ReturnURL: "/cb?authz=i1",
	}

	in := validRegisterInput()
	in.Submit = false
	in.ReturnURL = "/cb?authz=i1"

	res, err := e.service.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(e.interactions.denied) != 1 || e.interactions.denied[0] != oidc.DenyReasonAccessDenied {
		t.Fatalf("expected access_denied, got %v", e.interactions.denied)
	}
	if res.Destination != oidc.LoadingPage("/cb?authz=i1") {
		t.Fatalf("unexpected destination: %+v", res.Destination)
	}
	if e.store.count() != 0 {
		t.Fatal("decline must not create an account")
	}
}

func TestRegisterUnsafeReturnURL(t *testing.T) {
	e := newEnv()
	in := validRegisterInput()
	in.ReturnURL = "https://evil.example"

	_, err := e.service.Register(context.Background(), in)
	if !errors.Is(err, oidc.ErrInvalidReturnURL) {
		t.Fatalf("expected ErrInvalidReturnURL, got %v", err)
	}
}

func TestUpdateSuccess(t *testing.T) {
	e := newEnv()
	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil || res.Failed() {
		t.Fatalf("register: %v %v", err, res.Fields)
	}
	accountID := res.Session.AccountID

	upRes, err := e.service.Update(context.Background(), UpdateInput{
		AccountID: accountID,
		Username:  "alice",
		Email:     "new@example.com",
		Submit:    true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upRes.Failed() {
		t.Fatalf("unexpected field errors: %v", upRes.Fields)
	}
	got, err := e.store.FindByID(context.Background(), accountID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Email != "new@example.com" {
		t.Fatalf("email not updated: %q", got.Email)
	}
	if upRes.Session == nil {
		t.Fatal("successful update should re-sign in")
	}
}

func TestUpdateValidation(t *testing.T) {
	e := newEnv()
	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil || res.Failed() {
		t.Fatalf("register: %v %v", err, res.Fields)
	}

	upRes, err := e.service.Update(context.Background(), UpdateInput{
		AccountID: res.Session.AccountID,
		Username:  "x",
		Email:     "",
		Submit:    true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(upRes.Fields) != 2 {
		t.Fatalf("expected 2 field errors, got %v", upRes.Fields)
	}
}

func TestUpdateMissingAccount(t *testing.T) {
	e := newEnv()
	res, err := e.service.Update(context.Background(), UpdateInput{
		AccountID: "ghost",
		Username:  "ghost",
		Email:     "g@example.com",
		Submit:    true,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !res.Failed() {
		t.Fatal("expected field errors for missing account")
	}
}

func TestDeleteSignsOutAndRedirectsToLogin(t *testing.T) {
	e := newEnv()
	res, err := e.service.Register(context.Background(), validRegisterInput())
	if err != nil || res.Failed() {
		t.Fatalf("register: %v %v", err, res.Fields)
	}
	accountID := res.Session.AccountID

	delRes, err := e.service.Delete(context.Background(), accountID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if delRes.Destination != oidc.RedirectTo(LoginPath) {
		t.Fatalf("unexpected destination: %+v", delRes.Destination)
	}
	if e.store.count() != 0 {
		t.Fatal("account not deleted")
	}
	if e.sessions.activeFor(accountID) != 0 {
		t.Fatal("sessions not revoked")
	}
}

func TestDeleteMissingAccount(t *testing.T) {
	e := newEnv()
	res, err := e.service.Delete(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !res.Failed() {
		t.Fatal("expected field errors for missing account")
	}
}
