package create

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucho00cuba/patcher/cmd"
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

func TestCreateCmd_WritesPatchFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "old")
	newDir := filepath.Join(tmpDir, "new")
	if err := os.Mkdir(oldDir, 0755); err != nil {
		t.Fatalf("Failed to create oldDir: %v", err)
	}
	if err := os.Mkdir(newDir, 0755); err != nil {
		t.Fatalf("Failed to create newDir: %v", err)
	}
	writeFile(t, filepath.Join(oldDir, "a.txt"), "hello")
	writeFile(t, filepath.Join(newDir, "a.txt"), "hello world")

	outputPath := filepath.Join(tmpDir, "out.patch")

	var buf bytes.Buffer
	var errBuf bytes.Buffer
	rootCmd := cmd.GetRootCmd()
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs([]string{"create", oldDir, newDir, outputPath})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("rootCmd.Execute() error = %v", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		t.Fatalf("expected patch file at %s: %v", outputPath, err)
	}

	output := buf.String()
	if errBuf.Len() > 0 {
		output = errBuf.String() + output
	}
	if !strings.Contains(output, "patch written to") {
		t.Errorf("Output should confirm patch was written, got stdout: %q, stderr: %q", buf.String(), errBuf.String())
	}
}

func TestCreateCmd_WithExcludeFlag(t *testing.T) {
	tmpDir := t.TempDir()
	oldDir := filepath.Join(tmpDir, "old")
	newDir := filepath.Join(tmpDir, "new")
	if err := os.Mkdir(oldDir, 0755); err != nil {
		t.Fatalf("Failed to create oldDir: %v", err)
	}
	if err := os.Mkdir(newDir, 0755); err != nil {
		t.Fatalf("Failed to create newDir: %v", err)
	}
	writeFile(t, filepath.Join(oldDir, "keep.txt"), "same")
	writeFile(t, filepath.Join(newDir, "keep.txt"), "same")
	writeFile(t, filepath.Join(newDir, "build.log"), "noise")

	outputPath := filepath.Join(tmpDir, "out.patch")

	rootCmd := cmd.GetRootCmd()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"create", "-e", "build.log", oldDir, newDir, outputPath})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("rootCmd.Execute() with exclude flag error = %v", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		t.Fatalf("expected patch file at %s: %v", outputPath, err)
	}
}

func TestCreateCmd_NonexistentOldDir(t *testing.T) {
	tmpDir := t.TempDir()
	nonexistent := filepath.Join(tmpDir, "missing")
	newDir := filepath.Join(tmpDir, "new")
	if err := os.Mkdir(newDir, 0755); err != nil {
		t.Fatalf("Failed to create newDir: %v", err)
	}
	outputPath := filepath.Join(tmpDir, "out.patch")

	rootCmd := cmd.GetRootCmd()
	rootCmd.SetOut(io.Discard)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs([]string{"create", nonexistent, newDir, outputPath})

	if err := rootCmd.Execute(); err == nil {
		t.Error("rootCmd.Execute() expected error for nonexistent old dir")
	}
}

func TestCreateCmd_InvalidArgs(t *testing.T) {
	if createCmd.Args == nil {
		t.Fatal("createCmd should have Args validator set")
	}

	if err := createCmd.Args(createCmd, []string{"a", "b"}); err == nil {
		t.Error("createCmd.Args() expected error for two args")
	}
	if err := createCmd.Args(createCmd, []string{"a", "b", "c", "d"}); err == nil {
		t.Error("createCmd.Args() expected error for four args")
	}
	if err := createCmd.Args(createCmd, []string{"a", "b", "c"}); err != nil {
		t.Errorf("createCmd.Args() unexpected error for valid args: %v", err)
	}
}
