package shell

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gossipfs/internal/config"
	"gossipfs/internal/node"
)

func newTestNode(t *testing.T) *node.Node {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		PeerID: "P1", Host: "127.0.0.1", P2PPort: 0, BasePath: dir,
		BootstrapEndpoint: "127.0.0.1:1", PeerTimeout: time.Minute,
		PeerCleanupInterval: time.Minute, GossipInterval: time.Hour,
		GossipPeerCount: 3, NumFilesOnJoin: 3,
	}
	n, err := node.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := n.Listen(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { n.Close() })
	return n
}

func TestShellPushListPeersExit(t *testing.T) {
	n := newTestNode(t)

	path := filepath.Join(t.TempDir(), "hello.txt")
	os.WriteFile(path, []byte("hello world"), 0o644)

	in := strings.NewReader("push " + path + "\nlist\npeers\nexit\n")
	var out bytes.Buffer

	Run(n, in, &out)

	got := out.String()
	if !strings.Contains(got, "published") {
		t.Fatalf("expected a published confirmation, got: %s", got)
	}
	if !strings.Contains(got, "no tracked peers") {
		t.Fatalf("expected no tracked peers line, got: %s", got)
	}
	if !strings.Contains(got, "Exiting program") {
		t.Fatalf("expected exit confirmation, got: %s", got)
	}
}

func TestShellUnknownCommand(t *testing.T) {
	n := newTestNode(t)

	in := strings.NewReader("bogus\nexit\n")
	var out bytes.Buffer
	Run(n, in, &out)

	if !strings.Contains(out.String(), "Unknown command") {
		t.Fatalf("expected unknown command message, got: %s", out.String())
	}
}

func TestShellGetMissingContentIDReportsFailure(t *testing.T) {
	n := newTestNode(t)

	in := strings.NewReader("get doesnotexist\nexit\n")
	var out bytes.Buffer
	Run(n, in, &out)

	if !strings.Contains(out.String(), "get failed") {
		t.Fatalf("expected a get failure message, got: %s", out.String())
	}
}
