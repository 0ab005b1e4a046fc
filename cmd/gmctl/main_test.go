package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gm-dapp/internal/model"
)

type cli struct {
	t    *testing.T
	args []string
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("GM_PROJECT_ID", "test-project")
	return &cli{t: t, args: []string{
		"--offline",
		"--keyring-backend", "file",
		"--keyring-dir", filepath.Join(dir, "keys"),
		"--state-file", filepath.Join(dir, "state.json"),
		"--log-level", "error",
	}}
}

// run executes one gmctl invocation with a fresh app, as a new process would.
func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	var out bytes.Buffer
	root := newRootCommand(newApp(strings.NewReader("")))
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(append([]string{}, args...), c.args...))
	err := root.Execute()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestGmctl_OfflineLifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("wallet", "init")
	assert.Contains(t, out, "Wallet created")
	assert.Contains(t, out, "eip155:1:0x")

	_, err := c.run("wallet", "init")
	assert.Error(t, err)

	out = c.mustRun("register", "--yes")
	assert.Contains(t, out, "Registered eip155:1:0x")
	assert.Contains(t, out, "subscribed:   false")

	out = c.mustRun("subscribe")
	assert.Contains(t, out, "Subscribed eip155:1:0x")
	assert.Contains(t, c.mustRun("subscribe"), "Already subscribed")

	out = c.mustRun("send", "--title", "gm", "--body", "hello")
	assert.Contains(t, out, `Sent "gm"`)

	out = c.mustRun("inbox")
	assert.Contains(t, out, "gm: hello")

	out = c.mustRun("status")
	assert.Contains(t, out, "subscribed:   true")
}

func TestGmctl_PreferencesGateDelivery(t *testing.T) {
	c := newCLI(t)
	c.mustRun("wallet", "init")
	c.mustRun("register", "--yes")
	c.mustRun("subscribe")

	assert.Contains(t, c.mustRun("prefs", "set", "hourly"), "Preferences updated")

	out := c.mustRun("prefs", "get")
	assert.Contains(t, out, "[on ] "+model.TypeHourly)
	assert.Contains(t, out, "[off] "+model.TypeManual)

	out = c.mustRun("send", "--title", "gm")
	assert.Contains(t, out, "Not delivered: Message failed. Is Manual enabled in your preferences ?")

	_, err := c.run("prefs", "set", "weekly")
	assert.Error(t, err)
}

func TestGmctl_InboxPagingAndDelete(t *testing.T) {
	c := newCLI(t)
	c.mustRun("wallet", "init")
	c.mustRun("register", "--yes")
	c.mustRun("subscribe")
	for _, title := range []string{"one", "two", "three"} {
		c.mustRun("send", "--title", title, "--body", "b")
	}

	out := c.mustRun("inbox", "--page-size", "2")
	assert.Contains(t, out, "three: b")
	assert.Contains(t, out, "two: b")
	assert.NotContains(t, out, "one: b")
	assert.Contains(t, out, "more messages")

	out = c.mustRun("inbox", "--page-size", "2", "--all")
	assert.Contains(t, out, "one: b")
	assert.NotContains(t, out, "more messages")

	out = c.mustRun("inbox", "--delete", "1")
	assert.Contains(t, out, "Deleted message 1")
	assert.NotContains(t, out, "one: b")
}

func TestGmctl_UnsubscribeClearsState(t *testing.T) {
	c := newCLI(t)
	c.mustRun("wallet", "init")
	c.mustRun("register", "--yes")

	assert.Contains(t, c.mustRun("unsubscribe"), "Not subscribed")
	c.mustRun("subscribe")
	assert.Contains(t, c.mustRun("unsubscribe"), "Unsubscribed")

	out := c.mustRun("send", "--title", "gm")
	assert.Contains(t, out, "Not delivered: NotSubscribed")
}

func TestGmctl_RequiresRegistration(t *testing.T) {
	c := newCLI(t)
	c.mustRun("wallet", "init")

	_, err := c.run("subscribe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmctl register")
}

func TestGmctl_WatchNeedsServer(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("watch")
	assert.Error(t, err)
}
