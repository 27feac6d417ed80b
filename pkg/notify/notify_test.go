package notify

import (
	"context"
	stderrors "errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/conduit/pkg/batcher"
	"github.com/ajitpratap0/conduit/pkg/errors"
	"github.com/ajitpratap0/conduit/pkg/testutil"
)

var immediate = batcher.Options{MaxSize: 1, Throttle: time.Minute}

func newTestRouter(t *testing.T) (*Router, *batcher.Registry[Notification]) {
	reg := batcher.NewRegistry[Notification](batcher.WithLogger(testutil.TestLogger(t)), batcher.WithName(t.Name()))
	return NewRouter(reg, WithLogger(testutil.TestLogger(t))), reg
}

func userNotification(id string) Notification {
	return Notification{Message: &Payload{User: Object{"id": id}}}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		subject string
		want    string
		kind    Kind
	}{
		{"user_report:update", "user:update", KindUser},
		{"user:update", "user:update", KindUser},
		{"users_segment:delete", "segment:delete", KindSegment},
		{"segment:update", "segment:update", KindSegment},
		{"ship:update", "ship:update", KindShip},
		{"report:update", "report:update", KindReport},
		{"account:update", "account:update", KindOther},
		{"user_report", "user:", KindUser},
	}

	for _, tt := range tests {
		t.Run(tt.subject, func(t *testing.T) {
			name := Canonicalize(tt.subject)
			assert.Equal(t, tt.want, name.String())
			assert.Equal(t, tt.kind, name.Kind)
		})
	}
	assert.Equal(t, "segment", KindSegment.String())
	assert.Equal(t, "other", KindOther.String())
}

func TestDispatch_EmptyMessage(t *testing.T) {
	router, _ := newTestRouter(t)

	err := router.Dispatch(context.Background(), Scope{}, Message{}, Notification{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidInput))
}

func TestDispatch_EveryRegistrationGetsItsQueue(t *testing.T) {
	router, reg := newTestRouter(t)
	scope := Scope{Organization: "acme.example.com", Ship: "ship-1"}

	var mu sync.Mutex
	got := map[string][]Notification{}
	record := func(name string) BatchHandler {
		return func(_ context.Context, s Scope, batch []Notification) error {
			assert.Equal(t, scope, s)
			mu.Lock()
			got[name] = append(got[name], batch...)
			mu.Unlock()
			return nil
		}
	}

	router.
		Handle("user:update", record("first"), immediate).
		Handle("user_report:update", record("second"), immediate)

	n := userNotification("u1")
	err := router.Dispatch(context.Background(), scope, Message{Subject: "user_report:update"}, n)
	require.NoError(t, err)

	assert.Equal(t, []Notification{n}, got["first"])
	assert.Equal(t, []Notification{n}, got["second"])

	_, ok := reg.Get("acme.example.com/ship-1/user:update-0")
	assert.True(t, ok)
	_, ok = reg.Get("acme.example.com/ship-1/user:update-1")
	assert.True(t, ok)
}

func TestDispatch_ScopesDoNotShareQueues(t *testing.T) {
	router, reg := newTestRouter(t)

	var mu sync.Mutex
	seen := map[string]int{}
	router.Handle("user:update", func(_ context.Context, s Scope, batch []Notification) error {
		mu.Lock()
		seen[s.Ship] += len(batch)
		mu.Unlock()
		return nil
	}, immediate)

	for _, ship := range []string{"a", "b", "a"} {
		err := router.Dispatch(context.Background(), Scope{Organization: "org", Ship: ship},
			Message{Subject: "user:update"}, userNotification(ship))
		require.NoError(t, err)
	}

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, seen)
	assert.Equal(t, 2, reg.Len())
}

func TestDispatch_SeparatorsInScopeDoNotCollide(t *testing.T) {
	router, reg := newTestRouter(t)
	first := Scope{Organization: "a/b"}
	second := Scope{Organization: "a", Ship: "b/"}
	require.NotEqual(t, first.Key(), second.Key())

	var mu sync.Mutex
	seen := map[Scope][]Notification{}
	router.Handle("user:update", func(_ context.Context, s Scope, batch []Notification) error {
		mu.Lock()
		seen[s] = append(seen[s], batch...)
		mu.Unlock()
		return nil
	}, immediate)

	for _, scope := range []Scope{first, second} {
		err := router.Dispatch(context.Background(), scope,
			Message{Subject: "user:update"}, userNotification(scope.Ship))
		require.NoError(t, err)
	}

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, []Notification{userNotification("")}, seen[first])
	assert.Equal(t, []Notification{userNotification("b/")}, seen[second])
}

func TestHandle_RejectsInvalidRegistration(t *testing.T) {
	noop := func(context.Context, Scope, []Notification) error { return nil }

	tests := []struct {
		name string
		fn   BatchHandler
		opts batcher.Options
	}{
		{"negative max size", noop, batcher.Options{MaxSize: -1}},
		{"negative throttle", noop, batcher.Options{Throttle: -time.Second}},
		{"nil handler", nil, immediate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			assert.Panics(t, func() { router.Handle("user:update", tt.fn, tt.opts) })
			assert.Empty(t, router.Routes())
		})
	}

	router, _ := newTestRouter(t)
	assert.Panics(t, func() { router.HandleEvent(nil) })
}

func TestDispatch_ReportExpandsIntoEvents(t *testing.T) {
	router, _ := newTestRouter(t)

	var mu sync.Mutex
	var payloads []EventPayload
	collect := func(_ context.Context, _ Scope, p EventPayload) error {
		mu.Lock()
		payloads = append(payloads, p)
		mu.Unlock()
		return nil
	}
	router.HandleEvent(collect).HandleEvent(collect)

	var batched int
	router.Handle("report:update", func(_ context.Context, _ Scope, batch []Notification) error {
		batched += len(batch)
		return nil
	}, immediate)

	n := Notification{Message: &Payload{
		User:     Object{"id": "u1"},
		Segments: []Object{{"id": "s1"}},
		Events:   []Object{{"event": "Signed Up"}, {"event": "Logged In"}, {"event": "Churned"}},
	}}
	msg := Message{Subject: "report:update", Timestamp: "2024-05-01T10:00:00Z"}

	require.NoError(t, router.Dispatch(context.Background(), Scope{Ship: "s"}, msg, n))

	assert.Equal(t, 1, batched)
	require.Len(t, payloads, 6)
	for _, p := range payloads {
		assert.Equal(t, "event", p.Subject)
		assert.Equal(t, msg.Timestamp, p.Timestamp)
		assert.Equal(t, Object{"id": "u1"}, p.Message.User)
		assert.Equal(t, []Object{{"id": "s1"}}, p.Message.Segments)
	}
	names := map[any]int{}
	for _, p := range payloads {
		names[p.Message.Event["event"]]++
	}
	assert.Equal(t, map[any]int{"Signed Up": 2, "Logged In": 2, "Churned": 2}, names)
}

func TestDispatch_NoExpansionForOtherEvents(t *testing.T) {
	router, _ := newTestRouter(t)
	router.HandleEvent(func(context.Context, Scope, EventPayload) error {
		t.Error("event handler must only run for report updates")
		return nil
	})

	n := Notification{Message: &Payload{Events: []Object{{"event": "x"}}}}
	require.NoError(t, router.Dispatch(context.Background(), Scope{}, Message{Subject: "user:update"}, n))
}

func TestDispatch_FailureStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"explicit status", errors.New(errors.ErrorTypeTransport, "downstream unavailable").WithStatus(http.StatusServiceUnavailable), http.StatusServiceUnavailable},
		{"default status", stderrors.New("plain failure"), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t)
			router.Handle("user:update", func(context.Context, Scope, []Notification) error {
				return tt.err
			}, immediate)

			err := router.Dispatch(context.Background(), Scope{}, Message{Subject: "user:update"}, userNotification("u"))
			require.Error(t, err)
			assert.Equal(t, tt.status, errors.StatusCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDispatch_EventHandlerPanic(t *testing.T) {
	router, _ := newTestRouter(t)
	router.HandleEvent(func(context.Context, Scope, EventPayload) error {
		panic("bad payload")
	})

	n := Notification{Message: &Payload{Events: []Object{{"event": "x"}}}}
	err := router.Dispatch(context.Background(), Scope{}, Message{Subject: "report:update"}, n)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))
}

func TestDispatch_Unrouted(t *testing.T) {
	router, reg := newTestRouter(t)
	require.NoError(t, router.Dispatch(context.Background(), Scope{}, Message{Subject: "ship:update"}, Notification{}))
	assert.Zero(t, reg.Len())
}

func TestDispatch_BatchesAcrossCalls(t *testing.T) {
	router, _ := newTestRouter(t)

	var mu sync.Mutex
	var sizes []int
	router.Handle("user:update", func(_ context.Context, _ Scope, batch []Notification) error {
		mu.Lock()
		sizes = append(sizes, len(batch))
		mu.Unlock()
		return nil
	}, batcher.Options{MaxSize: 3, Throttle: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, router.Dispatch(context.Background(), Scope{}, Message{Subject: "user:update"}, userNotification("u")))
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{3}, sizes)
}

func TestRoutes(t *testing.T) {
	router, _ := newTestRouter(t)
	noop := func(context.Context, Scope, []Notification) error { return nil }
	router.
		Handle("users_segment:update", noop, batcher.Options{}).
		Handle("user_report:update", noop, batcher.Options{}).
		Handle("user:update", noop, batcher.Options{})

	assert.Equal(t, []string{"segment:update", "user:update"}, router.Routes())
}

func TestParseMessage(t *testing.T) {
	body := []byte(`{
		"Type": "Notification",
		"MessageId": "m-1",
		"Subject": "user_report:update",
		"Timestamp": "2024-05-01T10:00:00Z",
		"Message": "{\"message\":{\"user\":{\"id\":\"u1\"},\"segments\":[{\"id\":\"s1\"}]}}"
	}`)

	msg, n, err := ParseMessage(body)
	require.NoError(t, err)
	assert.Equal(t, "user_report:update", msg.Subject)
	assert.Equal(t, "m-1", msg.MessageID)
	require.NotNil(t, n.Message)
	assert.Equal(t, "u1", n.Message.User["id"])
	assert.Len(t, n.Message.Segments, 1)

	_, _, err = ParseMessage([]byte(`{"Subject": 1`))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errors.StatusCode(err))

	_, _, err = ParseMessage([]byte(`{"Subject":"user:update","Message":"not json"}`))
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidInput))
}

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "global", Scope{}.Key())
	assert.Equal(t, "org/ship", Scope{Organization: "org", Ship: "ship"}.Key())
	assert.Equal(t, "a%2Fb/", Scope{Organization: "a/b"}.Key())
	assert.Equal(t, "a/b%2F", Scope{Organization: "a", Ship: "b/"}.Key())
}
