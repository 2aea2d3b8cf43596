package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	served  bool
	indexed bool
	err     error
}

func (f *fakeApp) Run(context.Context) error {
	f.served = true
	return f.err
}

func (f *fakeApp) RunIndex(context.Context) error {
	f.indexed = true
	return f.err
}

// useApp swaps the factory; tests using it cannot run in parallel.
func useApp(t *testing.T, app App, factoryErr error) *string {
	t.Helper()
	var gotPath string
	previous := newApp
	newApp = func(_ context.Context, path string) (App, error) {
		gotPath = path
		return app, factoryErr
	}
	t.Cleanup(func() { newApp = previous })
	return &gotPath
}

func execute(args ...string) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(context.Background())
}

func TestRootServesByDefault(t *testing.T) {
	app := &fakeApp{}
	path := useApp(t, app, nil)

	require.NoError(t, execute("--config", "site.yaml"))
	require.True(t, app.served)
	require.False(t, app.indexed)
	require.Equal(t, "site.yaml", *path)
}

func TestServeCommand(t *testing.T) {
	app := &fakeApp{}
	useApp(t, app, nil)

	require.NoError(t, execute("serve"))
	require.True(t, app.served)
}

func TestIndexCommandPropagatesFailure(t *testing.T) {
	app := &fakeApp{err: errors.New("1 of 2 sites failed to index")}
	useApp(t, app, nil)

	err := execute("index", "--config", "site.yaml")
	require.ErrorContains(t, err, "sites failed")
	require.True(t, app.indexed)
	require.False(t, app.served)
}

func TestFactoryErrorStopsCommand(t *testing.T) {
	app := &fakeApp{}
	useApp(t, nil, errors.New("load config: no sites"))

	require.ErrorContains(t, execute("index"), "no sites")
	require.False(t, app.indexed)
}

func TestResolveAppWithoutApp(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}
