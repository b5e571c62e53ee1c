package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/readerfleet/internal/domain/account"
	"github.com/GriffinCanCode/readerfleet/internal/domain/view"
)

func allHandlers(HandlerKind) bool { return true }

func TestDefaultTableBuilds(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)
	assert.Len(t, table.Transitions(), len(DefaultTransitions()))
}

func TestLookup(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	tests := []struct {
		name    string
		current view.View
		action  Action
		found   bool
	}{
		{"login from auth", view.Of(view.AuthLogin), Login, true},
		{"next page self loop", view.Of(view.BookOpen), NextPage, true},
		{"open book needs populated", view.With(view.Library, view.Populated), OpenBook, true},
		{"open book from empty", view.With(view.Library, view.Empty), OpenBook, false},
		{"scroll any library", view.With(view.Library, view.Empty), ScrollLibrary, true},
		{"next page from library", view.With(view.Library, view.Populated), NextPage, false},
		{"unknown view", view.Of(view.Unknown), Login, false},
		{"unknown action", view.Of(view.Home), Action("fly"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := table.Lookup(tt.current, tt.action)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.found, table.Can(tt.current, tt.action))
			if ok {
				assert.Equal(t, tt.action, tr.Action)
			}
		})
	}
}

func TestLoginHasMultipleTargets(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	tr, ok := table.Lookup(view.Of(view.AuthLogin), Login)
	require.True(t, ok)

	assert.True(t, tr.Accepts(view.With(view.Library, view.Populated)))
	assert.True(t, tr.Accepts(view.Of(view.TwoFactor)))
	assert.True(t, tr.Accepts(view.Of(view.Captcha)))
	assert.False(t, tr.Accepts(view.Of(view.BookOpen)))
	assert.False(t, tr.SelfLoop())
}

func TestSelfLoop(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	tr, ok := table.Lookup(view.Of(view.BookOpen), NextPage)
	require.True(t, ok)
	assert.True(t, tr.SelfLoop())
	assert.Equal(t, HandlerReader, tr.Handler)
}

func TestReaderDialogs(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	open, ok := table.Lookup(view.With(view.Library, view.Populated), OpenBook)
	require.True(t, ok)
	assert.True(t, open.Accepts(view.Of(view.BookOpen)))
	assert.True(t, open.Accepts(view.Of(view.LastReadPage)))
	assert.True(t, open.Accepts(view.Of(view.AboutBook)))

	for _, from := range []view.Identity{view.LastReadPage, view.AboutBook} {
		tr, ok := table.Lookup(view.Of(from), DismissDialog)
		require.True(t, ok, from.String())
		assert.Equal(t, HandlerDialog, tr.Handler)
		assert.True(t, tr.Accepts(view.Of(view.BookOpen)))
	}

	state, ok := ImpliedAuth(view.Of(view.LastReadPage))
	assert.True(t, ok)
	assert.Equal(t, account.AuthAuthenticated, state)
}

func TestListBooksIsLibrarySelfLoop(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	for _, sub := range []view.SubState{view.Populated, view.Empty} {
		tr, ok := table.Lookup(view.With(view.Library, sub), ListBooks)
		require.True(t, ok)
		assert.True(t, tr.SelfLoop())
		assert.Equal(t, HandlerLibrary, tr.Handler)
	}
	assert.False(t, table.Can(view.Of(view.BookOpen), ListBooks))
}

func TestActions(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	assert.Equal(t, []Action{CloseBook, NextPage, PrevPage, ReadText}, table.Actions(view.Of(view.BookOpen)))
	assert.NotContains(t, table.Actions(view.With(view.Library, view.Empty)), OpenBook)
	assert.Contains(t, table.Actions(view.With(view.Library, view.Populated)), OpenBook)
	assert.True(t, table.Knows(Sync))
	assert.False(t, table.Knows(Action("fly")))
}

func TestNewValidation(t *testing.T) {
	lib := view.Of(view.Library)
	tests := []struct {
		name       string
		defs       []Transition
		hasHandler func(HandlerKind) bool
	}{
		{
			name: "duplicate key",
			defs: []Transition{
				{From: lib, Action: Sync, Targets: []view.View{lib}, Handler: HandlerLibrary},
				{From: lib, Action: Sync, Targets: []view.View{lib}, Handler: HandlerLibrary},
			},
			hasHandler: allHandlers,
		},
		{
			name:       "dangling target",
			defs:       []Transition{{From: lib, Action: Sync, Targets: []view.View{view.Of(view.Identity(99))}, Handler: HandlerLibrary}},
			hasHandler: allHandlers,
		},
		{
			name:       "unknown target",
			defs:       []Transition{{From: lib, Action: Sync, Targets: []view.View{view.Of(view.Unknown)}, Handler: HandlerLibrary}},
			hasHandler: allHandlers,
		},
		{
			name:       "no targets",
			defs:       []Transition{{From: lib, Action: Sync, Handler: HandlerLibrary}},
			hasHandler: allHandlers,
		},
		{
			name:       "unknown source",
			defs:       []Transition{{From: view.Of(view.Unknown), Action: Sync, Targets: []view.View{lib}, Handler: HandlerLibrary}},
			hasHandler: allHandlers,
		},
		{
			name:       "missing handler",
			defs:       []Transition{{From: lib, Action: Sync, Targets: []view.View{lib}, Handler: HandlerLibrary}},
			hasHandler: func(HandlerKind) bool { return false },
		},
		{
			name: "wildcard overlap",
			defs: []Transition{
				{From: lib, Action: OpenBook, Targets: []view.View{view.Of(view.BookOpen)}, Handler: HandlerLibrary},
				{From: view.With(view.Library, view.Populated), Action: OpenBook, Targets: []view.View{view.Of(view.BookOpen)}, Handler: HandlerLibrary},
			},
			hasHandler: allHandlers,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs, tt.hasHandler)
			assert.Error(t, err)
		})
	}
}

func TestImpliedAuth(t *testing.T) {
	state, ok := ImpliedAuth(view.Of(view.TwoFactor))
	assert.True(t, ok)
	assert.Equal(t, account.AuthPendingTwoFA, state)

	state, ok = ImpliedAuth(view.With(view.Library, view.Empty))
	assert.True(t, ok)
	assert.Equal(t, account.AuthAuthenticated, state)

	_, ok = ImpliedAuth(view.Of(view.NotificationPermission))
	assert.False(t, ok)
}

func TestTransitionsReturnsCopies(t *testing.T) {
	table, err := New(DefaultTransitions(), allHandlers)
	require.NoError(t, err)

	list := table.Transitions()
	list[0].Targets[0] = view.Of(view.Settings)

	tr, _ := table.Lookup(view.Of(view.AuthLogin), Login)
	assert.Equal(t, view.Of(view.Library), tr.Targets[0])
}
