package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goware/cachestore/memlru"
	"github.com/layer-3/forum/adapters/docstore"
	"github.com/layer-3/forum/adapters/oracle"
	"github.com/layer-3/forum/adapters/store"
	"github.com/layer-3/forum/adapters/tokenizer"
	"github.com/layer-3/forum/core"
	"github.com/layer-3/forum/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	verifiedAddr   = "0x1111111111111111111111111111111111111111"
	unverifiedAddr = "0x2222222222222222222222222222222222222222"
	bypassAddr     = "0x3333333333333333333333333333333333333333"
)

// memJar is a CookieJar over plain maps
type memJar struct {
	cookies map[string]string
}

func newJar() *memJar {
	return &memJar{cookies: map[string]string{}}
}

func (j *memJar) get(name string) (string, bool) {
	v, ok := j.cookies[name]
	return v, ok && v != ""
}

func (j *memJar) Nonce() (string, bool)                { return j.get("nonce") }
func (j *memJar) SetNonce(v string, _ time.Duration)   { j.cookies["nonce"] = v }
func (j *memJar) ClearNonce()                          { delete(j.cookies, "nonce") }
func (j *memJar) Session() (string, bool)              { return j.get("session") }
func (j *memJar) SetSession(v string, _ time.Duration) { j.cookies["session"] = v }
func (j *memJar) ClearSession()                        { delete(j.cookies, "session") }
func (j *memJar) Pending() (string, bool)              { return j.get("pending") }
func (j *memJar) SetPending(v string, _ time.Duration) { j.cookies["pending"] = v }
func (j *memJar) ClearPending()                        { delete(j.cookies, "pending") }

var _ ports.CookieJar = (*memJar)(nil)

// fakeVerifier treats the signature field as the verdict
type fakeVerifier struct {
	calls int
}

func (v *fakeVerifier) Verify(ctx context.Context, payload core.SignedPayload, nonce string) (core.SignatureResult, error) {
	v.calls++
	switch payload.Signature {
	case "valid":
		return core.SignatureResult{IsValid: true, Address: payload.Address}, nil
	case "no-address":
		return core.SignatureResult{IsValid: true}, nil
	case "error":
		return core.SignatureResult{}, errors.New("verifier unavailable")
	}
	return core.SignatureResult{}, nil
}

type failingOracle struct{}

func (failingOracle) IsVerified(ctx context.Context, address string) (bool, error) {
	return false, errors.New("oracle timeout")
}

// flakyOracle answers from inner until fail is set
type flakyOracle struct {
	inner ports.IdentityOracle
	fail  bool
}

func (o *flakyOracle) IsVerified(ctx context.Context, address string) (bool, error) {
	if o.fail {
		return false, errors.New("oracle unreachable")
	}
	return o.inner.IsVerified(ctx, address)
}

type recordingPublisher struct {
	mu       sync.Mutex
	auth     []core.AuthEvent
	messages []core.MessageEvent
}

func (p *recordingPublisher) PublishAuth(ctx context.Context, event core.AuthEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.auth = append(p.auth, event)
	return nil
}

func (p *recordingPublisher) PublishMessage(ctx context.Context, event core.MessageEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, event)
	return nil
}

func (p *recordingPublisher) authKinds() []core.AuthEventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var kinds []core.AuthEventKind
	for _, e := range p.auth {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

type brokenReader struct{}

func (brokenReader) Read(p []byte) (int, error) {
	return 0, errors.New("entropy exhausted")
}

type authFixture struct {
	auth     *AuthService
	forum    *ForumService
	oracle   *oracle.StaticOracle
	verifier *fakeVerifier
	events   *recordingPublisher
	docs     *docstore.MemoryStore
}

func newTestKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

func newForumService(t *testing.T, docs ports.DocumentStore, events ports.EventPublisher) *ForumService {
	t.Helper()
	forum, err := NewForumService(docs, events, memlru.Backend(64), zerolog.Nop())
	require.NoError(t, err)
	return forum
}

func newAuthFixture(t *testing.T, identity ports.IdentityOracle) *authFixture {
	t.Helper()

	static := oracle.NewStaticOracle(verifiedAddr)
	if identity == nil {
		identity = static
	}

	f := &authFixture{
		oracle:   static,
		verifier: &fakeVerifier{},
		events:   &recordingPublisher{},
		docs:     docstore.NewMemoryStore(),
	}
	f.forum = newForumService(t, f.docs, f.events)
	f.auth = NewAuthService(AuthDependencies{
		Codec:    tokenizer.NewJWTCodec(newTestKey(t)),
		Ledger:   store.NewMemoryLedger(),
		Verifier: f.verifier,
		Oracle:   identity,
		Policy:   core.NewAllowList([]string{bypassAddr}),
		Events:   f.events,
		Users:    f.forum,
	}, zerolog.Nop())
	return f
}

// signIn issues a nonce into jar and returns a request signed with it
func (f *authFixture) signIn(t *testing.T, jar *memJar, address, signature string) CompleteRequest {
	t.Helper()
	nonce, err := f.auth.IssueNonce(context.Background(), jar)
	require.NoError(t, err)
	return CompleteRequest{
		Payload: core.SignedPayload{Status: "success", Message: "sign in", Signature: signature, Address: address},
		Nonce:   nonce.Value,
	}
}
