package envsetup

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apify/actor-sandbox/internal/procexec"
)

func TestParseRequirementsSkipsBlanksAndComments(t *testing.T) {
	text := "requests==2.31.0\n\n# a comment\nnumpy>=1.26\n   \n"
	got := ParseRequirements(text)
	want := []string{"requests==2.31.0", "numpy>=1.26"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestPrepareNodeWorkspaceCreatesManifestAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	in := NewInstaller(root, procexec.NewRunner(root))

	pre, err := in.PrepareNodeWorkspace()
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if pre {
		t.Fatalf("expected fresh workspace, not pre-provisioned")
	}

	if _, err := os.Stat(filepath.Join(root, "js-ts", "package.json")); err != nil {
		t.Fatalf("package.json missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "js-ts", "node_modules")); err != nil {
		t.Fatalf("node_modules missing: %v", err)
	}

	pre2, err := in.PrepareNodeWorkspace()
	if err != nil {
		t.Fatalf("second prepare: %v", err)
	}
	if !pre2 {
		t.Fatalf("expected second call to report pre-provisioned")
	}
}

func TestRunInitEmptyScriptIsSuccess(t *testing.T) {
	root := t.TempDir()
	runner := procexec.NewRunner(root)
	if err := RunInit(context.Background(), runner, root, "   \n"); err != nil {
		t.Fatalf("expected empty init script to succeed, got %v", err)
	}
}

func TestRunInitNonZeroExitReturnsError(t *testing.T) {
	root := t.TempDir()
	runner := procexec.NewRunner(root)
	if err := RunInit(context.Background(), runner, root, "exit 3"); err == nil {
		t.Fatalf("expected an error for a failing init script")
	}
}

func TestRunInitSuccessRunsInRoot(t *testing.T) {
	root := t.TempDir()
	runner := procexec.NewRunner(root)
	marker := filepath.Join(root, "marker.txt")
	script := "pwd > " + shellQuote(marker)
	if err := RunInit(context.Background(), runner, root, script); err != nil {
		t.Fatalf("init script: %v", err)
	}
	got, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("expected marker file to be created: %v", err)
	}
	if strings.TrimSpace(string(got)) != root {
		t.Fatalf("init script ran in %q, want %q", strings.TrimSpace(string(got)), root)
	}
}
