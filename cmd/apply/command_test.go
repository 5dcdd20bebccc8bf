package apply

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucho00cuba/patcher/cmd"
	_ "github.com/lucho00cuba/patcher/cmd/create"
	"github.com/lucho00cuba/patcher/internal/logger"
)

func init() {
	logger.Init("error", "text", io.Discard)
}

func writeFile(t *testing.T, path string, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestApplyCmd_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "old")
	newDir := filepath.Join(tmpDir, "new")
	targetDir := filepath.Join(tmpDir, "target")
	if err := os.Mkdir(oldDir, 0755); err != nil {
		t.Fatalf("Failed to create oldDir: %v", err)
	}
	if err := os.Mkdir(newDir, 0755); err != nil {
		t.Fatalf("Failed to create newDir: %v", err)
	}
	writeFile(t, filepath.Join(oldDir, "a.txt"), "hello")
	writeFile(t, filepath.Join(newDir, "a.txt"), "hello world")

	patchPath := filepath.Join(tmpDir, "out.patch")
	rootCmd := cmd.GetRootCmd()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"create", oldDir, newDir, patchPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := copyDir(oldDir, targetDir); err != nil {
		t.Fatalf("Failed to seed target dir: %v", err)
	}

	var buf bytes.Buffer
	var errBuf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs([]string{"apply", targetDir, patchPath})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("rootCmd.Execute() error = %v", err)
	}

	output := buf.String()
	if errBuf.Len() > 0 {
		output = errBuf.String() + output
	}
	if !strings.Contains(output, "patch applied to") {
		t.Errorf("Output should confirm patch was applied, got stdout: %q, stderr: %q", buf.String(), errBuf.String())
	}

	got, err := os.ReadFile(filepath.Join(targetDir, "a.txt"))
	if err != nil {
		t.Fatalf("Failed to read patched file: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("patched content = %q, want %q", got, "hello world")
	}
}

func TestApplyCmd_NonexistentPatch(t *testing.T) {
	tmpDir := t.TempDir()
	targetDir := filepath.Join(tmpDir, "target")
	if err := os.Mkdir(targetDir, 0755); err != nil {
		t.Fatalf("Failed to create targetDir: %v", err)
	}
	patchPath := filepath.Join(tmpDir, "missing.patch")

	rootCmd := cmd.GetRootCmd()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"apply", targetDir, patchPath})

	if err := rootCmd.Execute(); err == nil {
		t.Error("rootCmd.Execute() expected error for missing patch file")
	}
}

func TestApplyCmd_InvalidArgs(t *testing.T) {
	if applyCmd.Args == nil {
		t.Fatal("applyCmd should have Args validator set")
	}

	if err := applyCmd.Args(applyCmd, []string{"only-one"}); err == nil {
		t.Error("applyCmd.Args() expected error for one arg")
	}
	if err := applyCmd.Args(applyCmd, []string{"a", "b", "c"}); err == nil {
		t.Error("applyCmd.Args() expected error for three args")
	}
	if err := applyCmd.Args(applyCmd, []string{"target", "patch"}); err != nil {
		t.Errorf("applyCmd.Args() unexpected error for valid args: %v", err)
	}
}

func copyDir(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
