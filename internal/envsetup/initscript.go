package envsetup

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apify/actor-sandbox/internal/procexec"
)

const initScriptTimeout = 300 * time.Second

// RunInit executes a user-supplied shell script once, bounded by a
// 300s timeout (spec §4.6). An empty/whitespace script is treated as
// success. A nonzero exit returns an error describing the failure;
// the caller (Lifecycle Controller) still proceeds to mark readiness
// complete and records this as the readiness error.
func RunInit(ctx context.Context, runner *procexec.Runner, root, script string) error {
	if strings.TrimSpace(script) == "" {
		return nil
	}

	path := filepath.Join(os.TempDir(), fmt.Sprintf("init-%d.sh", time.Now().UnixNano()))
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		return fmt.Errorf("failed to write init script: %w", err)
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("⚠️  [INITSCRIPT] failed to remove temp script %s: %v", path, err)
		}
	}()

	res, err := runner.Run(ctx, "bash "+shellQuote(path), root, initScriptTimeout)
	if err != nil {
		return fmt.Errorf("init script execution failed: %w", err)
	}

	if res.ExitCode != 0 {
		return fmt.Errorf("init script exited with code %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
	}

	log.Printf("✅ [INITSCRIPT] init script completed successfully")
	return nil
}
